package handlers

import (
	"encoding/base64"
	"math/big"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-sessions/internal/infra/security"
)

const jwksCacheControl = "public, max-age=3600"

// JWKSHandler publishes the verification keys so resource servers can validate
// access tokens without calling back.
type JWKSHandler struct {
	provider *security.FileKeyProvider
}

// NewJWKSHandler constructs a JWKS handler backed by the supplied key provider.
func NewJWKSHandler(provider *security.FileKeyProvider) *JWKSHandler {
	return &JWKSHandler{provider: provider}
}

// Keys renders the JSON Web Key Set.
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.provider == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "", "jwks not available"))
		return
	}

	public := h.provider.PublicKeys()

	kids := make([]string, 0, len(public))
	for kid := range public {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	keys := make([]JWKSKey, 0, len(kids))
	for _, kid := range kids {
		key := public[kid]
		keys = append(keys, JWKSKey{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.JSON(http.StatusOK, JWKSResponse{Keys: keys})
}
