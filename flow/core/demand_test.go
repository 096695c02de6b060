package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddCap(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		want int64
	}{
		{"small", 2, 3, 5},
		{"zero", 0, 7, 7},
		{"unbounded left", Unbounded, 1, Unbounded},
		{"unbounded right", 1, Unbounded, Unbounded},
		{"overflow saturates", Unbounded - 1, 5, Unbounded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddCap(tt.a, tt.b))
		})
	}
}

func TestMulCap(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		want int64
	}{
		{"small", 4, 3, 12},
		{"zero", 0, Unbounded, 0},
		{"unbounded", Unbounded, 3, Unbounded},
		{"overflow saturates", Unbounded / 2, 3, Unbounded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MulCap(tt.a, tt.b))
		})
	}
}

func TestDemand(t *testing.T) {
	t.Run("take decrements until empty", func(t *testing.T) {
		var d Demand
		d.Add(2)
		assert.True(t, d.Take())
		assert.True(t, d.Take())
		assert.False(t, d.Take())
		assert.Zero(t, d.Get())
	})

	t.Run("unbounded is never decremented", func(t *testing.T) {
		var d Demand
		d.Add(Unbounded)
		for range 1000 {
			assert.True(t, d.Take())
		}
		assert.True(t, d.Unbounded())
	})

	t.Run("add saturates", func(t *testing.T) {
		var d Demand
		d.Add(Unbounded - 1)
		d.Add(10)
		assert.True(t, d.Unbounded())
	})

	t.Run("set and reset", func(t *testing.T) {
		var d Demand
		d.Set(-3)
		assert.Zero(t, d.Get())
		d.Set(4)
		assert.Equal(t, int64(4), d.Reset())
		assert.Zero(t, d.Get())
	})
}
