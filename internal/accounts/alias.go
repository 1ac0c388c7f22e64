// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package accounts

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var aliasEmoji = []string{
	"🌀", "💫", "🌌", "🌙", "🧬", "🔥", "🔮", "🎭", "🛡", "📡",
	"🧊", "🐚", "🕯", "🌿", "🌟", "⚡", "🌪️", "🗝️", "🌑", "🕳️",
}

var aliasFirst = []string{
	"Nexus", "Cyber", "Shadow", "Ghost", "Zero", "Neuro", "Crypt", "Xeno", "Synth", "Rust",
	"Drone", "Hack", "Warp", "Void", "Static", "Quantum", "Iron", "Phantom", "Obsidian", "Cipher",
	"Lunar", "Nova", "Echo", "Crimson", "Twilight", "Oracle", "Voyager", "Specter", "Drift", "Glyph",
	"Mystic", "Astral", "Cosmic", "Digital", "Eternal", "Fusion", "Hyper", "Infinite", "Jade", "Kinetic",
}

var aliasSecond = []string{
	"Vortex", "Lynx", "Phreak", "Droid", "Mancer", "Glitch", "Byte", "Core", "Vault", "Nexus",
	"Shard", "Wire", "Pulse", "Fang", "Haze", "Thorn", "Blade", "Veil", "Storm", "Raven",
	"Serpent", "Claw", "Shade", "Infit", "Realm", "Titan", "Vertex", "Whisper", "Zenith", "Abyss",
	"Beacon", "Cascade", "Destiny", "Echo", "Frontier", "Guardian", "Horizon", "Illusion", "Journey", "Knight",
}

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// KeyLength is the length of generated access keys.
const KeyLength = 8

// GenerateAlias returns "<emoji> <Word> <Word>".
func GenerateAlias() (string, error) {
	parts := make([]string, 0, 3)
	for _, pool := range [][]string{aliasEmoji, aliasFirst, aliasSecond} {
		i, err := randIndex(len(pool))
		if err != nil {
			return "", err
		}
		parts = append(parts, pool[i])
	}
	return strings.Join(parts, " "), nil
}

// GenerateKey returns a random KeyLength key over A-Z0-9.
func GenerateKey() (string, error) {
	var b strings.Builder
	b.Grow(KeyLength)
	for i := 0; i < KeyLength; i++ {
		n, err := randIndex(len(keyAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(keyAlphabet[n])
	}
	return b.String(), nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
