// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package responses

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// Collection keys checked by a state check.
const (
	KeyThreadInfos     = "threadInfos"
	KeyEntryInfos      = "entryInfos"
	KeyCurrentUserInfo = "currentUserInfo"
	KeyUserInfos       = "userInfos"
)

// Per-record key prefixes.
const (
	prefixThreadInfo = "threadInfo"
	prefixEntryInfo  = "entryInfo"
	prefixUserInfo   = "userInfo"
)

// Hash returns the state-check hash of v.
func Hash(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode for hashing: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

func recordKey(prefix, id string) string {
	return prefix + "|" + id
}

// splitRecordKey splits "threadInfo|<id>" into its prefix and id.
func splitRecordKey(key string) (prefix, id string, ok bool) {
	i := strings.IndexByte(key, '|')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
