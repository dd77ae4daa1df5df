package main

import "unicode"

// Wallet addresses arrive pre-authenticated from the wallet layer; this only
// guards against garbage keys ending up in storage.
func isValidWalletAddress(wallet string) bool {
	if len(wallet) < 3 || len(wallet) > 64 {
		return false
	}

	for _, r := range wallet {
		if r == '-' || r == '_' || r == '.' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return false
	}

	return true
}

func isValidRunID(runID string) bool {
	if runID == "" || len(runID) > 128 {
		return false
	}
	for _, r := range runID {
		if r == '-' || r == '_' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
