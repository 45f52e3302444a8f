package cache

import (
	"strconv"
	"testing"
)

func BenchmarkCacheGet(b *testing.B) {
	c := New[string, int](1000)
	for i := range 100 {
		c.Set(strconv.Itoa(i), i)
	}

	for b.Loop() {
		c.Get("50")
	}
}

func BenchmarkCacheSet(b *testing.B) {
	c := New[string, int](1000)

	i := 0
	for b.Loop() {
		c.Set(strconv.Itoa(i%100), i)
		i++
	}
}

func BenchmarkCacheSetEvicting(b *testing.B) {
	c := New[int, int](64)

	i := 0
	for b.Loop() {
		c.Set(i, i)
		i++
	}
}
