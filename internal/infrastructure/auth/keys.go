package auth

import (
	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

// SigningKeyProvider supplies key material for signing new access tokens and
// validating inbound ones. ValidationKeys may return more than one key so a
// rotated-out signing key keeps validating until its tokens expire.
type SigningKeyProvider interface {
	SigningKey() ([]byte, error)
	ValidationKeys() ([][]byte, error)
}

// StaticKeyProvider serves keys fixed at process start.
type StaticKeyProvider struct {
	signing    []byte
	validation [][]byte
}

func NewStaticKeyProvider(secret string, fallbackSecrets []string) *StaticKeyProvider {
	p := &StaticKeyProvider{}
	if secret != "" {
		p.signing = []byte(secret)
		p.validation = append(p.validation, p.signing)
	}
	for _, s := range fallbackSecrets {
		if s != "" {
			p.validation = append(p.validation, []byte(s))
		}
	}
	return p
}

func (p *StaticKeyProvider) SigningKey() ([]byte, error) {
	if len(p.signing) == 0 {
		return nil, pkgerrors.ErrKeyUnavailable
	}
	return p.signing, nil
}

func (p *StaticKeyProvider) ValidationKeys() ([][]byte, error) {
	if len(p.validation) == 0 {
		return nil, pkgerrors.ErrKeyUnavailable
	}
	return p.validation, nil
}
