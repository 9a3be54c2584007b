package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"entitycache/pkg/domain"
)

// DecodeOperation implements EntityDefinition. data is the JSON payload of
// the op: an entity, an entity array, an id, an id array, query params, a
// filter string or a boolean flag. Error ops take the error message as a
// string or as {"error": "..."}.
func (d *Definition[T]) DecodeOperation(op domain.EntityOp, data []byte) (domain.Operation, error) {
	if op.IsError() {
		return domain.OpError{Failed: op.Base(), Err: errors.New(decodeErrorMessage(data))}, nil
	}
	switch op {
	case domain.OpAddOne:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.AddOne[T]{Entity: e} })
	case domain.OpAddMany:
		return decodeWith(d, op, data, func(e []T) domain.Operation { return domain.AddMany[T]{Entities: e} })
	case domain.OpUpdateOne:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.UpdateOne[T]{Entity: e} })
	case domain.OpUpdateMany:
		return decodeWith(d, op, data, func(e []T) domain.Operation { return domain.UpdateMany[T]{Entities: e} })
	case domain.OpUpsertOne:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.UpsertOne[T]{Entity: e} })
	case domain.OpUpsertMany:
		return decodeWith(d, op, data, func(e []T) domain.Operation { return domain.UpsertMany[T]{Entities: e} })
	case domain.OpDeleteOne:
		return decodeWith(d, op, data, func(id domain.ID) domain.Operation { return domain.DeleteOne{ID: id} })
	case domain.OpDeleteMany:
		return decodeWith(d, op, data, func(ids []domain.ID) domain.Operation { return domain.DeleteMany{IDs: ids} })
	case domain.OpRemoveAll:
		return domain.RemoveAll{}, nil
	case domain.OpQueryAll:
		return domain.QueryAll{}, nil
	case domain.OpQueryAllSuccess:
		return decodeWith(d, op, data, func(e []T) domain.Operation { return domain.QueryAllSuccess[T]{Entities: e} })
	case domain.OpQueryByKey:
		return decodeWith(d, op, data, func(id domain.ID) domain.Operation { return domain.QueryByKey{ID: id} })
	case domain.OpQueryByKeySuccess:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.QueryByKeySuccess[T]{Entity: e} })
	case domain.OpQueryMany:
		if isEmptyJSON(data) {
			return domain.QueryMany{}, nil
		}
		return decodeWith(d, op, data, func(p domain.QueryParams) domain.Operation { return domain.QueryMany{Params: p} })
	case domain.OpQueryManySuccess:
		return decodeWith(d, op, data, func(e []T) domain.Operation { return domain.QueryManySuccess[T]{Entities: e} })
	case domain.OpSaveAddOne:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.SaveAddOne[T]{Entity: e} })
	case domain.OpSaveAddOneSuccess:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.SaveAddOneSuccess[T]{Entity: e} })
	case domain.OpSaveUpdateOne:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.SaveUpdateOne[T]{Entity: e} })
	case domain.OpSaveUpdateOneSuccess:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.SaveUpdateOneSuccess[T]{Entity: e} })
	case domain.OpSaveUpsertOne:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.SaveUpsertOne[T]{Entity: e} })
	case domain.OpSaveUpsertOneSuccess:
		return decodeWith(d, op, data, func(e T) domain.Operation { return domain.SaveUpsertOneSuccess[T]{Entity: e} })
	case domain.OpSaveDeleteOne:
		return decodeWith(d, op, data, func(id domain.ID) domain.Operation { return domain.SaveDeleteOne{ID: id} })
	case domain.OpSaveDeleteOneSuccess:
		return decodeWith(d, op, data, func(id domain.ID) domain.Operation { return domain.SaveDeleteOneSuccess{ID: id} })
	case domain.OpSetFilter:
		return decodeWith(d, op, data, func(p string) domain.Operation { return domain.SetFilter{Pattern: p} })
	case domain.OpSetLoaded:
		return decodeWith(d, op, data, func(v bool) domain.Operation { return domain.SetLoaded{Loaded: v} })
	case domain.OpSetLoading:
		return decodeWith(d, op, data, func(v bool) domain.Operation { return domain.SetLoading{Loading: v} })
	default:
		return nil, d.payloadError(op, "unknown op")
	}
}

func decodeWith[T, V any](d *Definition[T], op domain.EntityOp, data []byte, build func(V) domain.Operation) (domain.Operation, error) {
	if isEmptyJSON(data) {
		return nil, d.payloadError(op, "missing data")
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, d.payloadError(op, fmt.Sprintf("decode data: %v", err))
	}
	return build(v), nil
}

func isEmptyJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeErrorMessage(data []byte) string {
	if isEmptyJSON(data) {
		return "unknown error"
	}
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		return msg
	}
	var obj struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Error != "" {
			return obj.Error
		}
		if obj.Message != "" {
			return obj.Message
		}
	}
	return string(bytes.TrimSpace(data))
}
