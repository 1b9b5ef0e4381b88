package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	sig := sign("order_1", "pay_1", "secret")

	assert.True(t, VerifySignature("order_1", "pay_1", sig, "secret"))
}

func TestVerifySignature_SingleCharacterMutationFlips(t *testing.T) {
	sig := sign("order_1", "pay_1", "secret")

	// Мутация любого компонента полезной нагрузки ломает подпись.
	assert.False(t, VerifySignature("order_2", "pay_1", sig, "secret"))
	assert.False(t, VerifySignature("order_1", "pay_2", sig, "secret"))
	assert.False(t, VerifySignature("order_1", "pay_1", sig, "secreT"))

	mutated := []byte(sig)
	if mutated[0] == 'a' {
		mutated[0] = 'b'
	} else {
		mutated[0] = 'a'
	}
	assert.False(t, VerifySignature("order_1", "pay_1", string(mutated), "secret"))
}

func TestVerifySignature_EmptyInputs(t *testing.T) {
	sig := sign("order_1", "pay_1", "secret")

	assert.False(t, VerifySignature("", "pay_1", sig, "secret"))
	assert.False(t, VerifySignature("order_1", "", sig, "secret"))
	assert.False(t, VerifySignature("order_1", "pay_1", "", "secret"))
	assert.False(t, VerifySignature("order_1", "pay_1", sig, ""))
}

func TestVerifySignature_KnownVector(t *testing.T) {
	// Подпись не зависит от ничего, кроме payload и секрета.
	sig := sign("o", "p", "k")
	again := sign("o", "p", "k")

	assert.Equal(t, sig, again)
	assert.True(t, VerifySignature("o", "p", sig, "k"))
}
