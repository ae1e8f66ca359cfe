package types

// CredentialsIdent distinguishes who owns the credential used for an attempt.
// It influences cost attribution (spec §3): usage billed against a
// caller-supplied key is still recorded, but a Gateway-owned key additionally
// counts against the gateway's own pooled ceilings.
type CredentialsIdent string

const (
	// CredentialsOwn marks a credential supplied by the caller/project.
	CredentialsOwn CredentialsIdent = "own"
	// CredentialsGateway marks a credential owned by the gateway operator.
	CredentialsGateway CredentialsIdent = "gateway"
)

// Credentials is a tagged union over the supported credential shapes. Exactly
// one field is populated, matching Kind.
type Credentials struct {
	Kind  CredentialsKind
	Ident CredentialsIdent

	APIKey string

	// Endpoint accompanies APIKeyWithEndpoint (self-hosted OpenAI-compatible
	// deployments, custom proxies).
	Endpoint string

	AWS AWSCredentials
}

// CredentialsKind enumerates the tagged variants of Credentials.
type CredentialsKind string

const (
	CredentialsKindAPIKey             CredentialsKind = "api_key"
	CredentialsKindAPIKeyWithEndpoint CredentialsKind = "api_key_with_endpoint"
	CredentialsKindAWSStatic          CredentialsKind = "aws_static"
	CredentialsKindAWSAPIKey          CredentialsKind = "aws_api_key"
	CredentialsKindNone               CredentialsKind = "none"
)

// AWSCredentials carries the Bedrock-specific credential shapes: either a
// static access/secret key pair or Bedrock's bearer-token API key mode.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string

	// BearerToken is set for CredentialsKindAWSAPIKey.
	BearerToken string
}
