package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServesLocalLot(t *testing.T) {
	tests := []struct {
		mode   string
		remote string
		want   bool
	}{
		{"cli", "", true},
		{"cli", "http://127.0.0.1:5000", false},
		{"server", "", true},
		{"both", "", true},
		{"both", "http://127.0.0.1:5000", true},
	}

	for _, tt := range tests {
		t.Run(tt.mode+" "+tt.remote, func(t *testing.T) {
			assert.Equal(t, tt.want, servesLocalLot(tt.mode, tt.remote))
		})
	}
}
