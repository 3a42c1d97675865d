package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func TestJWT(t *testing.T) {
	Convey("JWT 签发与校验", t, func() {
		j := NewJWT("test-secret", time.Hour)

		Convey("签发的 token 可以被校验", func() {
			token, err := j.GenerateToken("user-1", "u1@example.com", "User One")
			So(err, ShouldBeNil)

			claims, err := j.ValidateToken(token)
			So(err, ShouldBeNil)
			So(claims.Identity(), ShouldEqual, "user-1")
			So(claims.Email, ShouldEqual, "u1@example.com")
		})

		Convey("密钥不同则校验失败", func() {
			token, err := NewJWT("other-secret", time.Hour).GenerateToken("user-1", "", "")
			So(err, ShouldBeNil)

			_, err = j.ValidateToken(token)
			So(err, ShouldEqual, ErrInvalidToken)
		})

		Convey("过期 token 返回 ErrExpiredToken", func() {
			token, err := NewJWT("test-secret", -time.Minute).GenerateToken("user-1", "", "")
			So(err, ShouldBeNil)

			_, err = j.ValidateToken(token)
			So(err, ShouldEqual, ErrExpiredToken)
		})

		Convey("只有 sub 的 token 也能识别用户", func() {
			raw := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.RegisteredClaims{
				Subject:   "external-user",
				ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
			})
			token, err := raw.SignedString([]byte("test-secret"))
			So(err, ShouldBeNil)

			claims, err := j.ValidateToken(token)
			So(err, ShouldBeNil)
			So(claims.Identity(), ShouldEqual, "external-user")
		})

		Convey("没有用户标识的 token 无效", func() {
			raw := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.RegisteredClaims{
				ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
			})
			token, err := raw.SignedString([]byte("test-secret"))
			So(err, ShouldBeNil)

			_, err = j.ValidateToken(token)
			So(err, ShouldEqual, ErrInvalidToken)
		})
	})
}
