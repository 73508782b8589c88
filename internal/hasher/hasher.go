// Copyright 2023 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hasher

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"

	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// Algorithm is the digest algorithm backing every Hasher produced by New.
const Algorithm = "sha256"

// A Hasher accumulates values into a collision-resistant digest. Values are
// length-prefixed before being fed to the underlying hash so that adjacent
// writes cannot be confused for one another.
type Hasher interface {
	PutString(s string)
	PutBytes(b []byte)
	PutHash(h v1.Hash)
	Sum() v1.Hash
}

// New returns a SHA-256 backed Hasher.
func New() Hasher {
	return &sha256Hasher{h: sha256.New()}
}

type sha256Hasher struct {
	h hash.Hash
}

func (s *sha256Hasher) PutString(v string) {
	s.putLen(len(v))
	_, _ = io.WriteString(s.h, v)
}

func (s *sha256Hasher) PutBytes(b []byte) {
	s.putLen(len(b))
	_, _ = s.h.Write(b)
}

func (s *sha256Hasher) PutHash(h v1.Hash) {
	s.PutString(h.String())
}

func (s *sha256Hasher) Sum() v1.Hash {
	return v1.Hash{
		Algorithm: Algorithm,
		Hex:       hex.EncodeToString(s.h.Sum(nil)),
	}
}

func (s *sha256Hasher) putLen(n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	_, _ = s.h.Write(buf[:])
}
