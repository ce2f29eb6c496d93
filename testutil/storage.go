package testutil

import (
	"context"
	"fmt"
)

func (s *MemoryStorage) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	s.next++
	uri := fmt.Sprintf("mem://blob/%d", s.next)
	s.Objects[uri] = append([]byte(nil), data...)
	return uri, nil
}

func (s *MemoryStorage) Remove(ctx context.Context, uri string) error {
	delete(s.Objects, uri)
	s.Removed = append(s.Removed, uri)
	return nil
}
