package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/example/newport/internal/metrics"
	"github.com/example/newport/internal/services"
)

type paymeRequestID struct {
	ID json.RawMessage `json:"id"`
}

// PaymeAuthMiddleware validates the Basic credentials Payme sends with every
// Merchant API call. The login is fixed by Payme, the password is the
// merchant key.
func PaymeAuthMiddleware(login, merchantKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if validPaymeCredentials(c.Get(fiber.HeaderAuthorization), login, merchantKey) {
			return c.Next()
		}

		var reqID paymeRequestID
		_ = json.Unmarshal(c.Body(), &reqID)

		info := services.PaymeErrorInvalidAuthorization
		metrics.WebhookCallsTotal.WithLabelValues("unauthorized", strconv.Itoa(info.Code)).Inc()
		log.WithField("ip", c.IP()).Warn("[Payme] Rejected call with invalid credentials")

		return c.Status(fiber.StatusUnauthorized).
			JSON(services.NewRPCError(reqID.ID, services.NewTransactionError(info)))
	}
}

func validPaymeCredentials(header, login, merchantKey string) bool {
	if merchantKey == "" {
		return false
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return false
	}

	user, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(login)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(merchantKey)) == 1
	return userOK && passwordOK
}
