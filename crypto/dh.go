package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	// PrivateKeyBits is the bit length of a freshly generated DH exponent.
	PrivateKeyBits = 2048
	// SharedSecretSize is the symmetric key length carved from the DH result.
	SharedSecretSize = 24
)

var (
	// ErrInvalidGroup indicates missing or malformed group parameters.
	ErrInvalidGroup = errors.New("crypto: invalid Diffie-Hellman group")
	// ErrInvalidPublicValue indicates an unusable peer public value.
	ErrInvalidPublicValue = errors.New("crypto: invalid peer public value")
)

// Group holds the Diffie-Hellman generator and modulus. The parameters are
// injected configuration; both peers must agree on them at build time.
type Group struct {
	G *big.Int
	P *big.Int
}

// rfc3526Group14Hex is the 2048-bit MODP modulus from RFC 3526, section 3.
const rfc3526Group14Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

// DefaultGroup returns the fixed 2048-bit MODP group (generator 2) both
// peers use when no alternative parameters are injected.
func DefaultGroup() Group {
	p, ok := new(big.Int).SetString(rfc3526Group14Hex, 16)
	if !ok {
		panic("crypto: malformed built-in group modulus")
	}
	return Group{G: big.NewInt(2), P: p}
}

func (g Group) validate() error {
	if g.G == nil || g.P == nil || g.P.Sign() <= 0 || g.G.Sign() <= 0 {
		return ErrInvalidGroup
	}
	return nil
}

// byteLen returns the modulus width in bytes.
func (g Group) byteLen() int {
	return (g.P.BitLen() + 7) / 8
}

// KeyPair is one side's ephemeral Diffie-Hellman key material.
type KeyPair struct {
	Private *big.Int
	Public  *big.Int
}

// PublicBytes returns the public value as unsigned big-endian bytes, the
// form that crosses the wire.
func (kp KeyPair) PublicBytes() []byte {
	if kp.Public == nil {
		return nil
	}
	return kp.Public.Bytes()
}

// GenerateKeyPair draws a uniform PrivateKeyBits-bit exponent and computes
// the matching public value g^private mod p.
func GenerateKeyPair(group Group) (KeyPair, error) {
	if err := group.validate(); err != nil {
		return KeyPair{}, err
	}

	max := new(big.Int).Lsh(big.NewInt(1), PrivateKeyBits)
	private, err := rand.Int(rand.Reader, max)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate DH exponent: %w", err)
	}

	public := new(big.Int).Exp(group.G, private, group.P)
	return KeyPair{Private: private, Public: public}, nil
}

// DeriveSharedSecret computes peerPublic^private mod p and truncates the
// fixed-width unsigned big-endian encoding to SharedSecretSize bytes.
//
// The unsigned encoding avoids the sign-byte artifact a two's-complement
// encoding would introduce; both peers must use the same convention.
func DeriveSharedSecret(peerPublic []byte, private *big.Int, group Group) ([]byte, error) {
	if err := group.validate(); err != nil {
		return nil, err
	}
	if private == nil {
		return nil, errors.New("crypto: private exponent is required")
	}
	if len(peerPublic) == 0 {
		return nil, ErrInvalidPublicValue
	}

	peer := new(big.Int).SetBytes(peerPublic)
	if peer.Sign() <= 0 || peer.Cmp(group.P) >= 0 {
		return nil, ErrInvalidPublicValue
	}

	shared := new(big.Int).Exp(peer, private, group.P)
	fixed := shared.FillBytes(make([]byte, group.byteLen()))
	if len(fixed) < SharedSecretSize {
		return nil, ErrInvalidGroup
	}

	secret := make([]byte, SharedSecretSize)
	copy(secret, fixed[:SharedSecretSize])
	return secret, nil
}
