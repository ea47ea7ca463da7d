/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"log"
	"strings"
	"time"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// Rejection codes for game events. Every one of these is local to the
// offending request: the sender gets an ERROR frame, nobody else notices.
const (
	codeNotFound          = "not_found"
	codeUnauthorized      = "unauthorized"
	codeExpiredReconnect  = "expired_reconnect"
	codeInvalidTransition = "invalid_transition"
	codeGuardFailed       = "guard_failed"
	codeValidationFailed  = "validation_failed"
)

type rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *rejection) Error() string {
	return r.Code + ": " + r.Message
}

func reject(code, format string, args ...any) *rejection {
	return &rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
