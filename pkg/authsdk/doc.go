/*
Package authsdk is a client for the Shield authentication service and holds
the JSON types its HTTP API speaks.

# Sessions

The client keeps cookies, so a password login carries over to later calls:

	client := authsdk.NewClient("https://auth.example.com")

	resp, err := client.Login(ctx, authsdk.LoginRequest{Email: email, Password: pw})
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeInvalidCredentials {
			// wrong email or password
		}
	}
	if resp.Pending != "" {
		// a second factor was mailed or must be read from an authenticator app
		resp, err = client.VerifyAction(ctx, code)
	}

	me, err := client.Me(ctx)

# Tokens

A logged in client can mint personal access tokens and short-lived JWTs.
Set Authorization to use one instead of the session cookie:

	tok, err := client.CreateToken(ctx, authsdk.CreateTokenRequest{Name: "ci"})
	client.Authorization = "Bearer " + tok.Token

# Errors

Every non-2xx response is returned as *APIError carrying the HTTP status,
the stable error code and, for rejected passwords, the failed rule.
*/
package authsdk
