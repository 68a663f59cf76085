package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/remittance/backend/internal/remittance"
)

const (
	// TonProofPrefix: фиксированный префикс для TON Proof по спецификации TON Connect.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix = "ton-proof-item-v2/"

	// TonConnectPrefix: префикс перед SHA256 хешем сообщения.
	TonConnectPrefix = "ton-connect"

	// MaxProofAge: максимальный возраст proof (защита от replay).
	MaxProofAge = 5 * time.Minute

	maxClockSkew = time.Minute
)

// ProofData is what the wallet returns for a ton_proof request.
type ProofData struct {
	Address   string `json:"address"`    // raw: 0:<hex>
	Network   string `json:"network"`    // "-239" = mainnet, "-3" = testnet
	PublicKey string `json:"public_key"` // hex
	Proof     Proof  `json:"proof"`
	StateInit string `json:"state_init,omitempty"` // base64 BOC
}

type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`   // наш nonce
	Signature string      `json:"signature"` // base64 (hex тоже принимаем)
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// VerifyProof checks that the key pubKey signed proof for addr at a time
// close to now and for one of the allowed domains.
//
//	message = "ton-proof-item-v2/" ++ wc(4 LE) ++ hash(32) ++ len(domain)(4 LE) ++ domain ++ ts(8 LE) ++ payload
//	signed  = sha256(0xffff ++ "ton-connect" ++ sha256(message))
func VerifyProof(pubKey []byte, addr remittance.Address, proof Proof, allowedDomains []string, now time.Time) error {
	proofTime := time.Unix(proof.Timestamp, 0)
	if now.Sub(proofTime) > MaxProofAge {
		return fmt.Errorf("proof expired: %s old", now.Sub(proofTime).Round(time.Second))
	}
	if proofTime.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("proof timestamp is in the future")
	}

	if !isDomainAllowed(proof.Domain.Value, allowedDomains) {
		return fmt.Errorf("domain %q not in allowed list", proof.Domain.Value)
	}
	if proof.Domain.LengthBytes != len(proof.Domain.Value) {
		return fmt.Errorf("domain length %d does not match %q", proof.Domain.LengthBytes, proof.Domain.Value)
	}

	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pubKey))
	}

	sig, err := decodeSignature(proof.Signature)
	if err != nil {
		return err
	}

	digest := SignedDigest(addr, proof)
	if !ed25519.Verify(pubKey, digest[:], sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// SignedDigest is the 32-byte value the wallet signs.
func SignedDigest(addr remittance.Address, proof Proof) [32]byte {
	message := []byte(TonProofPrefix)
	message = binary.LittleEndian.AppendUint32(message, uint32(int32(addr.Workchain())))
	message = append(message, addr.Account()...)
	message = binary.LittleEndian.AppendUint32(message, uint32(proof.Domain.LengthBytes))
	message = append(message, proof.Domain.Value...)
	message = binary.LittleEndian.AppendUint64(message, uint64(proof.Timestamp))
	message = append(message, proof.Payload...)

	msgHash := sha256.Sum256(message)

	signatureMessage := []byte{0xff, 0xff}
	signatureMessage = append(signatureMessage, TonConnectPrefix...)
	signatureMessage = append(signatureMessage, msgHash[:]...)

	return sha256.Sum256(signatureMessage)
}

// DecodePublicKey parses the hex key sent by the wallet.
func DecodePublicKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: %d", len(key))
	}
	return key, nil
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(sig) != ed25519.SignatureSize {
		sig, err = hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("signature is neither base64 nor hex")
		}
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return sig, nil
}

func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true // если список пуст, разрешаем всё (dev mode)
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
