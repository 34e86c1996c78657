package middleware

import (
	"bytes"
	"encoding/base64"
	"errors"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	dbpkg "detectinsight/internal/db"
	httpctx "detectinsight/internal/http/ctx"
)

var (
	errBadCredentials = errors.New("bad credentials")
	errNotAdmin       = errors.New("not admin")
)

// AdminAuth guards the dashboard and admin endpoints with HTTP Basic auth,
// checked against the stored bcrypt hash of an admin user. Only users with
// the persisted admin flag pass; a matching username alone grants nothing.
func AdminAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			username, password, ok := basicCredentials(ctx)
			if !ok {
				unauthorized(ctx)
				return
			}

			var user dbpkg.User
			if err := db.Where("username = ?", username).First(&user).Error; err != nil {
				unauthorized(ctx)
				return
			}

			switch verifyAdmin(&user, password) {
			case nil:
			case errNotAdmin:
				ctx.SetStatusCode(fasthttp.StatusForbidden)
				ctx.SetBodyString("forbidden")
				return
			default:
				unauthorized(ctx)
				return
			}

			httpctx.SetUser(ctx, &user)
			next(ctx)
		}
	}
}

// verifyAdmin checks the presented password against the stored hash and then
// the stored admin flag.
func verifyAdmin(user *dbpkg.User, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return errBadCredentials
	}
	if !user.IsAdmin {
		return errNotAdmin
	}
	return nil
}

func basicCredentials(ctx *fasthttp.RequestCtx) (username, password string, ok bool) {
	auth := ctx.Request.Header.Peek("Authorization")
	const prefix = "Basic "
	if !bytes.HasPrefix(auth, []byte(prefix)) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(string(auth[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	idx := bytes.IndexByte(decoded, ':')
	if idx < 0 {
		return "", "", false
	}
	return string(decoded[:idx]), string(decoded[idx+1:]), true
}

func unauthorized(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="detectinsight"`)
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetBodyString("unauthorized")
}
