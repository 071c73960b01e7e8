// Package masking provides the strategies used to erase or obfuscate field
// values during an erasure run.
//
// Strategies are looked up by name in a Registry. Default holds the built-in
// strategies; custom strategies are added with Register:
//
//	s, err := masking.Default().Strategy(masking.Config{
//	    Strategy:      masking.StringRewrite,
//	    Configuration: map[string]any{"rewrite_value": "MASKED"},
//	})
//
// Unknown names fail with a dsr.NoSuchStrategyError that lists the valid
// names, so configuration is checked with Validate before any request runs.
//
// Strategies that need secrets (hash, hmac, aes_encrypt) read them from the
// dsr.Request; ProvisionSecrets generates them once per request.
package masking
