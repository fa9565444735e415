// Tidevue - Stream Aggregation Backend
// Copyright 2026 Tidevue contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tidevue/tidevue

package storage

import "strings"

// Pool tuning constants applied to every parsed DSN. A queue limit of 0
// means "do not queue beyond pool size" in the driver's convention.
const (
	dsnConnLimit  = 10
	dsnMaxIdle    = 10
	dsnQueueLimit = 0
)

// DSNParts holds the fields of a compact connection string.
type DSNParts struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string

	ConnLimit  int
	MaxIdle    int
	QueueLimit int
}

// ParseDSN splits a compact DSN of the form user:password@host:port/database
// into discrete connection fields.
//
// Splitting is strictly positional: the first ':' separates user from
// password, the first '/' after the '@' separates host:port from the
// database name, and the last ':' in the host segment separates host from
// port. Credential characters are not validated; a malformed DSN produces
// garbled fields and a downstream connection failure rather than a
// parse-time error. Callers relying on the exact split points is the reason
// this is not hardened here.
func ParseDSN(dsn string) DSNParts {
	cred, rest, _ := strings.Cut(dsn, "@")

	user, password, _ := strings.Cut(cred, ":")
	hostport, database, _ := strings.Cut(rest, "/")

	host, port := hostport, ""
	if i := strings.LastIndex(hostport, ":"); i >= 0 {
		host, port = hostport[:i], hostport[i+1:]
	}

	return DSNParts{
		User:       user,
		Password:   password,
		Host:       host,
		Port:       port,
		Database:   database,
		ConnLimit:  dsnConnLimit,
		MaxIdle:    dsnMaxIdle,
		QueueLimit: dsnQueueLimit,
	}
}
