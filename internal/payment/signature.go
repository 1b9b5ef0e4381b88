// Package payment содержит проверку подписи платёжного шлюза и клиент создания заказов.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature проверяет подпись callback-а платёжного шлюза.
// Подпись — HMAC-SHA256 от строки "orderID|paymentID" в нижнем hex-регистре.
// Возвращает false при любом несовпадении и никогда не паникует.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
