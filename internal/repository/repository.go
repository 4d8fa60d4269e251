package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"aimate/pkg/trace"
)

var (
	// ErrNotFound 记录不存在，或不属于当前用户
	ErrNotFound = errors.New("record not found")

	ErrActionItemNotFound = errors.New("action item not found")
	ErrAlreadyConverted   = errors.New("action item already converted")
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func marshalPayload(payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return body, nil
}

func traceID(ctx context.Context) string {
	return trace.FromContext(ctx)
}
