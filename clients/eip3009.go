package clients

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vitwit/x402-facilitator/types"
)

const (
	eip712DomainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	eip3009AuthType  = "TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"
)

// AuthorizationDigest computes the EIP-712 digest of an EIP-3009
// TransferWithAuthorization message for the given token domain.
func AuthorizationDigest(auth types.EVMAuthorization, chainID *big.Int, token, domainName, domainVersion string) ([]byte, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid value %q", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter %q", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore %q", auth.ValidBefore)
	}
	nonce, err := hexToBytes32(auth.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	domainSeparator := crypto.Keccak256(
		crypto.Keccak256([]byte(eip712DomainType)),
		crypto.Keccak256([]byte(domainName)),
		crypto.Keccak256([]byte(domainVersion)),
		leftPadBig(chainID),
		leftPadAddress(token),
	)

	structHash := crypto.Keccak256(
		crypto.Keccak256([]byte(eip3009AuthType)),
		leftPadAddress(auth.From),
		leftPadAddress(auth.To),
		leftPadBig(value),
		leftPadBig(validAfter),
		leftPadBig(validBefore),
		nonce[:],
	)

	return crypto.Keccak256([]byte("\x19\x01"), domainSeparator, structHash), nil
}

// RecoverAuthorizationSigner recovers the address that signed the
// authorization. Accepts both v conventions (0/1 and 27/28).
func RecoverAuthorizationSigner(auth types.EVMAuthorization, sigHex string, chainID *big.Int, token, domainName, domainVersion string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}

	digest, err := AuthorizationDigest(auth, chainID, token, domainName, domainVersion)
	if err != nil {
		return common.Address{}, err
	}

	// crypto.SigToPub expects the recovery id as 0/1.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, recSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SplitSignature splits a 65-byte hex signature into the (v, r, s)
// triple expected by transferWithAuthorization. v is normalized to the
// 27/28 convention the token contracts use.
func SplitSignature(sigHex string) (v uint8, r [32]byte, s [32]byte, err error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return 0, r, s, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return 0, r, s, fmt.Errorf("invalid signature length %d", len(sig))
	}

	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

func hexToBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func leftPadBig(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func leftPadAddress(addr string) []byte {
	return common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32)
}
