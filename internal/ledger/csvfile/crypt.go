package csvfile

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// ageHeader prefixes every age-encrypted payload.
const ageHeader = "age-encryption.org"

type cipher struct {
	identity  *age.ScryptIdentity
	recipient *age.ScryptRecipient
}

func newCipher(passphrase string, workFactor int) (*cipher, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("create recipient: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}
	return &cipher{identity: identity, recipient: recipient}, nil
}

func isAgeEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, []byte(ageHeader))
}

func (c *cipher) encrypt(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, c.recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *cipher) decrypt(data []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(data), c.identity)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
