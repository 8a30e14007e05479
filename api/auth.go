package api

import (
	"bytes"
	"crypto/ecdsa"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	HeaderNonce     = "X-Caller-Nonce"
	HeaderSignature = "X-Caller-Signature"

	callerKey = "caller"
)

// SigningHash is the digest a caller signs for one request.
func SigningHash(method, path string, nonce uint64, body []byte) []byte {
	return crypto.Keccak256(
		[]byte(method), []byte("\n"),
		[]byte(path), []byte("\n"),
		[]byte(strconv.FormatUint(nonce, 10)), []byte("\n"),
		body,
	)
}

// Sign returns the X-Caller-Signature value for a request.
func Sign(key *ecdsa.PrivateKey, method, path string, nonce uint64, body []byte) (string, error) {
	sig, err := crypto.Sign(SigningHash(method, path, nonce, body), key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// NonceStore remembers the last accepted nonce of every caller. AdvanceNonce
// accepts nonce only if it is above the last one for caller, and records it.
type NonceStore interface {
	AdvanceNonce(caller common.Address, nonce uint64) (bool, error)
}

// nonceTracker is the in-memory NonceStore. Accepted nonces are lost on
// restart.
type nonceTracker struct {
	mu   sync.Mutex
	last map[common.Address]uint64
}

func newNonceTracker() *nonceTracker {
	return &nonceTracker{last: make(map[common.Address]uint64)}
}

func (t *nonceTracker) AdvanceNonce(caller common.Address, nonce uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if nonce <= t.last[caller] {
		return false, nil
	}
	t.last[caller] = nonce
	return true, nil
}

// authenticate recovers the caller from the request signature.
func (s *Server) authenticate(c *gin.Context) {
	nonce, err := strconv.ParseUint(c.GetHeader(HeaderNonce), 10, 64)
	if err != nil {
		abortUnauthorized(c, "missing or malformed "+HeaderNonce)
		return
	}
	sig, err := hexutil.Decode(c.GetHeader(HeaderSignature))
	if err != nil || len(sig) != crypto.SignatureLength {
		abortUnauthorized(c, "missing or malformed "+HeaderSignature)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortUnauthorized(c, "unreadable body")
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	pub, err := crypto.SigToPub(SigningHash(c.Request.Method, c.Request.URL.Path, nonce, body), sig)
	if err != nil {
		abortUnauthorized(c, "bad signature")
		return
	}
	caller := crypto.PubkeyToAddress(*pub)
	ok, err := s.nonces.AdvanceNonce(caller, nonce)
	if err != nil {
		logrus.Errorf("advance nonce of %s: %v", caller.Hex(), err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"code": "NonceUnavailable", "error": err.Error()})
		return
	}
	if !ok {
		abortUnauthorized(c, "stale nonce")
		return
	}

	logrus.Debugf("request %s %s signed by %s", c.Request.Method, c.Request.URL.Path, caller.Hex())
	c.Set(callerKey, caller)
	c.Next()
}

func callerOf(c *gin.Context) common.Address {
	if v, ok := c.Get(callerKey); ok {
		return v.(common.Address)
	}
	return common.Address{}
}

func abortUnauthorized(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "Unauthorized", "error": reason})
}
