package auth

// Service verifies bearer tokens for the transport layer.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{jwtConfig: jwtConfig}
}

// ValidateToken verifies a token and returns its claims.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, token)
}

// IssueToken signs a token for the given claims.
func (s *Service) IssueToken(claims Claims) (string, error) {
	return GenerateToken(s.jwtConfig, claims)
}
