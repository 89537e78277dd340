package rpc

import (
	"context"
	"errors"
	"strconv"

	"github.com/spooky-finn/gatews-bridge/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type getOrderBookSnapshotRequest struct {
	Provider string
	Market   string
	MaxDepth int
}

func parseGetOrderBookSnapshotRequest(in *structpb.Struct) getOrderBookSnapshotRequest {
	fields := in.GetFields()
	return getOrderBookSnapshotRequest{
		Provider: fields["provider"].GetStringValue(),
		Market:   fields["market"].GetStringValue(),
		MaxDepth: int(fields["max_depth"].GetNumberValue()),
	}
}

func (s *server) GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := parseGetOrderBookSnapshotRequest(in)

	if !s.validationService.IsSupportedProvider(req.Provider) {
		return nil, status.Errorf(codes.InvalidArgument, "provider %s is not supported", req.Provider)
	}
	if err := s.validationService.ValidateDepth(req.MaxDepth); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	marketSymbol, err := domain.NewMarketSymbolFromString(req.Market)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid market symbol %s. Correct market symbol should use _ as a separator", req.Market)
	}

	snapshot, err := s.orderbookSnapshotUseCase.GetOrderBookSnapshot(ctx, req.Provider, marketSymbol, req.MaxDepth)
	if err != nil {
		logger.WithError(err).WithField("market", req.Market).Warn("failed to get order book snapshot")
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"source":         string(snapshot.Source),
		"last_update_id": strconv.FormatUint(snapshot.LastUpdateID, 10),
		"bids":           levelsToList(snapshot.Bids),
		"asks":           levelsToList(snapshot.Asks),
	})
}

func levelsToList(levels []domain.PriceLevel) []interface{} {
	out := make([]interface{}, 0, len(levels))
	for _, level := range levels {
		out = append(out, map[string]interface{}{
			"price": level.Price.String(),
			"qty":   level.Size,
		})
	}
	return out
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrProviderNotFound), errors.Is(err, domain.ErrOrderBookNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}
