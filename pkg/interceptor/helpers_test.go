package interceptor

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwtAt(now time.Time) jwt.ParserOption {
	return jwt.WithTimeFunc(func() time.Time { return now })
}
