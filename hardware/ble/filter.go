// Package ble is Nordic UART service transport over BlueZ.
package ble

import (
	"strings"

	"github.com/temoto/vesctel/internal/link"
)

// DefaultChunk is payload limit of single ATT write with default MTU.
const DefaultChunk = 20

type Config struct {
	// NameFilter is case insensitive substring of advertised name.
	// Empty matches any named peer.
	NameFilter string
	// Chunk splits writes, <=0 means DefaultChunk.
	Chunk int
}

func (c Config) chunk() int {
	if c.Chunk <= 0 {
		return DefaultChunk
	}
	return c.Chunk
}

func MatchName(name, filter string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// NormalizeAddress makes MAC comparable regardless of letter case.
func NormalizeAddress(a string) string { return strings.ToUpper(strings.TrimSpace(a)) }

// peerSet accumulates advertisements, address wins over name.
type peerSet struct {
	index map[string]int
	list  []link.PeerDescriptor
}

func newPeerSet() *peerSet { return &peerSet{index: make(map[string]int)} }

func (self *peerSet) add(p link.PeerDescriptor) {
	key := NormalizeAddress(p.Address)
	if i, ok := self.index[key]; ok {
		self.list[i].RSSI = p.RSSI
		if p.Name != "" {
			self.list[i].Name = p.Name
		}
		return
	}
	self.index[key] = len(self.list)
	self.list = append(self.list, p)
}

// peers in discovery order, repeated advertisements keep first position
func (self *peerSet) peers() []link.PeerDescriptor {
	return append([]link.PeerDescriptor(nil), self.list...)
}

func splitChunks(b []byte, n int) [][]byte {
	chunks := make([][]byte, 0, len(b)/n+1)
	for len(b) > n {
		chunks = append(chunks, b[:n])
		b = b[n:]
	}
	if len(b) > 0 {
		chunks = append(chunks, b)
	}
	return chunks
}
