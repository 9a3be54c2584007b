package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"entitycache/pkg/domain"
)

// ActionTypeEntity marks an entity-scoped action in an encoded action log.
const ActionTypeEntity = "entity"

// actionEnvelope is one line of an action log.
type actionEnvelope struct {
	Type          string          `json:"type"`
	EntityName    string          `json:"entityName,omitempty"`
	Op            domain.EntityOp `json:"op,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Tag           string          `json:"tag,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// ActionCodec decodes JSON-encoded actions against the registered
// definitions.
type ActionCodec struct {
	definitions *DefinitionService
	snapshots   *SnapshotCodec
}

// NewActionCodec returns a codec backed by definitions.
func NewActionCodec(definitions *DefinitionService) *ActionCodec {
	return &ActionCodec{definitions: definitions, snapshots: NewSnapshotCodec(definitions)}
}

// Decode parses one encoded action.
func (c *ActionCodec) Decode(data []byte) (domain.Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	switch env.Type {
	case ActionTypeEntity, "":
		def, err := c.definitions.Definition(env.EntityName)
		if err != nil {
			return nil, err
		}
		op, err := def.DecodeOperation(env.Op, env.Data)
		if err != nil {
			return nil, err
		}
		return domain.EntityAction{
			EntityName:    env.EntityName,
			Payload:       op,
			CorrelationID: env.CorrelationID,
			Tag:           env.Tag,
		}, nil
	case domain.ActionSetEntityCache:
		snap, err := decodeSnapshot(env.Data)
		if err != nil {
			return nil, err
		}
		cache, err := c.snapshots.DecodeCache(snap)
		if err != nil {
			return nil, err
		}
		return domain.SetEntityCache{Cache: cache}, nil
	case domain.ActionMergeQuerySet, domain.ActionLoadCollections:
		snap, err := decodeSnapshot(env.Data)
		if err != nil {
			return nil, err
		}
		qs, err := c.snapshots.DecodeQuerySet(snap)
		if err != nil {
			return nil, err
		}
		if env.Type == domain.ActionLoadCollections {
			return domain.LoadCollections{QuerySet: qs}, nil
		}
		return domain.MergeQuerySet{QuerySet: qs}, nil
	case domain.ActionClearCollections:
		var names []string
		if !isEmptyJSON(env.Data) {
			if err := json.Unmarshal(env.Data, &names); err != nil {
				return nil, fmt.Errorf("decode %s: %w", env.Type, err)
			}
		}
		return domain.ClearCollections{EntityNames: names}, nil
	default:
		return nil, fmt.Errorf("decode action: unknown type %q", env.Type)
	}
}

func decodeSnapshot(data []byte) (domain.Snapshot, error) {
	snap := domain.Snapshot{}
	if isEmptyJSON(data) {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Replay decodes one action per line of r and dispatches it to store. Blank
// lines and lines starting with # are skipped. It stops at the first error and
// reports the line number.
func (c *ActionCodec) Replay(ctx context.Context, r io.Reader, store *Store) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	applied, line := 0, 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		action, err := c.Decode(text)
		if err != nil {
			return applied, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := store.Dispatch(ctx, action); err != nil {
			return applied, fmt.Errorf("line %d: %w", line, err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("read actions: %w", err)
	}
	return applied, nil
}
