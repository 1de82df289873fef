package application

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// codeAlphabet is the 62-character case-sensitive code space. At the default
// length of 8 that is 62^8 (~218 trillion) codes, which is what makes the
// collision-retry loop in Create effectively bounded.
const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator produces random short codes of a fixed length.
type CodeGenerator interface {
	Generate(length int) (string, error)
}

// NanoIDGenerator generates codes with a cryptographically random NanoID.
type NanoIDGenerator struct{}

func NewNanoIDGenerator() *NanoIDGenerator {
	return &NanoIDGenerator{}
}

func (g *NanoIDGenerator) Generate(length int) (string, error) {
	return gonanoid.Generate(codeAlphabet, length)
}
