// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEncoding is the shared cl100k_base encoder used for local token
// estimation ahead of a real completion call (BuildLegacyPrompt's budget
// admission). It is loaded lazily and once: the
// tiktoken-go BPE file load is not free and every caller wants the same
// encoding.
var (
	tokenEncodingOnce sync.Once
	tokenEncoding     *tiktoken.Tiktoken
	tokenEncodingErr  error
)

func getTokenEncoding() (*tiktoken.Tiktoken, error) {
	tokenEncodingOnce.Do(func() {
		tokenEncoding, tokenEncodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	return tokenEncoding, tokenEncodingErr
}

// estimateTokens returns the token count tiktoken-go would assign to s,
// falling back to a conservative chars/4 estimate if the encoder could
// not be loaded (e.g. no network access to fetch the BPE ranks file on
// first use in an offline environment).
func estimateTokens(s string) int {
	enc, err := getTokenEncoding()
	if err != nil {
		return len(s)/4 + 1
	}
	return len(enc.Encode(s, nil, nil))
}
