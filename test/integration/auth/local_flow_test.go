// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

//go:build integration

package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authgate/authgate/internal/auth"
)

type browser struct {
	client *http.Client
}

func newBrowser() *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &browser{client: &http.Client{Jar: jar}}
}

func (b *browser) do(method, path, body string) (int, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, env.server.URL+"/api/v1/auth"+path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, data
}

func (b *browser) me() auth.User {
	status, data := b.do(http.MethodGet, "/me", "")
	Expect(status).To(Equal(http.StatusOK), string(data))
	var user auth.User
	Expect(json.Unmarshal(data, &user)).To(Succeed())
	return user
}

var _ = Describe("Local account lifecycle", func() {
	It("registers, confirms, logs out and logs back in", func() {
		b := newBrowser()

		status, data := b.do(http.MethodPost, "/local/register",
			`{"email":"Ada@Example.com","nickName":"ada","displayName":"Ada","password":"analytical-engine"}`)
		Expect(status).To(Equal(http.StatusCreated), string(data))

		user := b.me()
		Expect(user.Email).To(Equal("ada@example.com"))
		Expect(user.AccountStatus).To(Equal(auth.AccountUnverified))

		token := env.mail.lastToken("ada@example.com")
		Expect(token).NotTo(BeEmpty())
		Expect(env.redis.Exists(auth.ConfirmationKey(token))).To(BeTrue())

		status, data = b.do(http.MethodGet, "/confirm/"+token, "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(data).To(MatchJSON(`{"success":true,"message":"Account verified successfully"}`))
		Expect(env.redis.Exists(auth.ConfirmationKey(token))).To(BeFalse())
		Expect(b.me().AccountStatus).To(Equal(auth.AccountVerified))

		status, _ = b.do(http.MethodDelete, "/logout", "")
		Expect(status).To(Equal(http.StatusNoContent))
		status, _ = b.do(http.MethodGet, "/me", "")
		Expect(status).To(Equal(http.StatusUnauthorized))

		status, data = b.do(http.MethodPost, "/local/login", `{"email":"ada@example.com","password":"analytical-engine"}`)
		Expect(status).To(Equal(http.StatusOK), string(data))
		Expect(b.me().Nickname).To(Equal("ada"))
	})

	It("rejects duplicate emails and nicknames with 409", func() {
		b := newBrowser()
		status, _ := b.do(http.MethodPost, "/local/register",
			`{"email":"grace@example.com","nickName":"grace","password":"compiler-first"}`)
		Expect(status).To(Equal(http.StatusCreated))

		status, data := b.do(http.MethodPost, "/local/register",
			`{"email":"GRACE@example.com","nickName":"grace2","password":"compiler-first"}`)
		Expect(status).To(Equal(http.StatusConflict))
		Expect(data).To(MatchJSON(`{"statusCode":409,"message":"Email already in use"}`))

		status, data = b.do(http.MethodPost, "/local/register",
			`{"email":"hopper@example.com","nickName":"grace","password":"compiler-first"}`)
		Expect(status).To(Equal(http.StatusConflict))
		Expect(data).To(MatchJSON(`{"statusCode":409,"message":"Nickname already in use"}`))
	})

	It("refuses a wrong password without setting cookies", func() {
		b := newBrowser()
		status, _ := b.do(http.MethodPost, "/local/register",
			`{"email":"linus@example.com","nickName":"linus","password":"correct-horse"}`)
		Expect(status).To(Equal(http.StatusCreated))
		b.do(http.MethodDelete, "/logout", "")

		status, data := b.do(http.MethodPost, "/local/login", `{"email":"linus@example.com","password":"battery-staple"}`)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(data).To(MatchJSON(`{"statusCode":401,"message":"Invalid credentials"}`))
		status, _ = b.do(http.MethodGet, "/me", "")
		Expect(status).To(Equal(http.StatusUnauthorized))
	})
})
