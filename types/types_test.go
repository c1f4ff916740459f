package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evmPayload(t *testing.T) PaymentPayload {
	t.Helper()
	raw, err := json.Marshal(ExactEvmPayload{
		Signature: "0xabcdef",
		Authorization: EVMAuthorization{
			From:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			To:          "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Value:       "10000",
			ValidAfter:  "0",
			ValidBefore: "9999999999",
			Nonce:       "0x" + "00" + "11223344556677889900112233445566778899001122334455667788990011",
		},
	})
	require.NoError(t, err)
	return PaymentPayload{
		X402Version: X402Version,
		Scheme:      SchemeExact,
		Network:     NetworkBaseSepolia.String(),
		Payload:     raw,
	}
}

func TestPayerAddress(t *testing.T) {
	payload := evmPayload(t)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", payload.PayerAddress())

	svm := PaymentPayload{
		X402Version: X402Version,
		Scheme:      SchemeExact,
		Network:     NetworkSolanaDevnet.String(),
		Payload:     json.RawMessage(`{"transaction":"AQID"}`),
	}
	assert.Equal(t, "", svm.PayerAddress())

	broken := PaymentPayload{Payload: json.RawMessage(`not json`)}
	assert.Equal(t, "", broken.PayerAddress())
}

func TestDecodeExactSvm(t *testing.T) {
	payload := PaymentPayload{Payload: json.RawMessage(`{"transaction":"AQID"}`)}
	decoded, err := payload.DecodeExactSvm()
	require.NoError(t, err)
	assert.Equal(t, "AQID", decoded.Transaction)
}

func TestRequirementsRoundTrip(t *testing.T) {
	reqs := PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           NetworkBaseSepolia.String(),
		MaxAmountRequired: "10000",
		Resource:          "https://example.com/report",
		PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		MaxTimeoutSeconds: 60,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Extra:             map[string]interface{}{"name": "USDC", "version": "2"},
	}

	data, err := json.Marshal(reqs)
	require.NoError(t, err)

	var back PaymentRequirements
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, reqs, back)

	assert.Equal(t, "USDC", back.EIP712Name())
	assert.Equal(t, "2", back.EIP712Version())
}

func TestEIP712Defaults(t *testing.T) {
	var reqs PaymentRequirements
	assert.Equal(t, "USD Coin", reqs.EIP712Name())
	assert.Equal(t, "2", reqs.EIP712Version())
}

func TestVerifyRequestValidate(t *testing.T) {
	valid := VerifyRequest{
		PaymentPayload: evmPayload(t),
		PaymentRequirements: PaymentRequirements{
			Scheme:            SchemeExact,
			Network:           NetworkBaseSepolia.String(),
			MaxAmountRequired: "10000",
			PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		},
	}
	assert.NoError(t, valid.Validate())

	missingAsset := valid
	missingAsset.PaymentRequirements.Asset = ""
	assert.Error(t, missingAsset.Validate())

	mismatch := valid
	mismatch.PaymentRequirements.Network = NetworkSolanaDevnet.String()
	assert.Error(t, mismatch.Validate())
}

func TestCashbackRecordJSON(t *testing.T) {
	record := CashbackRecord{Amount: 1, Percent: 2}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":1,"txHash":null,"percent":2}`, string(data))

	hash := "0xdeadbeef"
	record.TxHash = &hash
	data, err = json.Marshal(record)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":1,"txHash":"0xdeadbeef","percent":2}`, string(data))
}

func TestX402Error(t *testing.T) {
	err := Errorf(ErrUnsupportedNetwork, "unsupported network: %s", "cosmoshub")
	assert.Equal(t, "unsupported network: cosmoshub", err.Error())
	assert.Equal(t, ErrUnsupportedNetwork, err.Code)
}
