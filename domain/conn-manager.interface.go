package domain

type ConnManager interface {
	StreamAPI(provider string) (ProviderStreamAPI, error)
	SyncAPI(provider string) (ProviderSyncAPI, error)
}
