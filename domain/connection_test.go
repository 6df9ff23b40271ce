package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionStale(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	conn := NewConnection("conn-1", "maya", "Maya", now)

	req.False(conn.Stale(now.Add(2*time.Minute), 2*time.Minute))
	req.True(conn.Stale(now.Add(2*time.Minute+time.Second), 2*time.Minute))
}
