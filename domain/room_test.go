package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomID_Forms(t *testing.T) {
	req := require.New(t)

	req.Equal(RoomID("pregnancy-42"), PregnancyRoom("42"))
	req.Equal(RoomID("pregnancy-42-grandparents"), GroupRoom("42", "grandparents"))
}

func TestRoomID_Valid(t *testing.T) {
	tests := []struct {
		room  RoomID
		valid bool
	}{
		{PregnancyRoom("42"), true},
		{GroupRoom("42", "siblings"), true},
		{RoomID("pregnancy-"), false},
		{RoomID("chat-42"), false},
		{RoomID(""), false},
	}

	for _, tc := range tests {
		t.Run(string(tc.room), func(t *testing.T) {
			require.Equal(t, tc.valid, tc.room.Valid())
		})
	}
}

func TestRoomID_PregnancyID(t *testing.T) {
	req := require.New(t)

	req.Equal("42", PregnancyRoom("42").PregnancyID())
	// Group suffix is stripped
	req.Equal("42", GroupRoom("42", "grandparents").PregnancyID())
}
