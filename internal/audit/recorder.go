package audit

import (
	"context"

	"github.com/andino-labs/andino/internal/auth"
)

// These methods satisfy the authentication recorder hook used by the
// auth service, mirroring how LogDenial serves the permission
// middleware.

func (l *AsyncLogger) LoginSucceeded(ctx context.Context, p *auth.Principal, ip string) {
	e := eventForPrincipal(p, ActionLoginSucceeded)
	e.IP = ip
	l.Log(ctx, e)
}

func (l *AsyncLogger) LoginFailed(ctx context.Context, guard auth.Guard, email, ip, reason string) {
	action := ActionLoginFailed
	if reason == "account_inactive" || reason == "company_inactive" {
		action = ActionLoginInactive
	}
	l.Log(ctx, Event{
		ActorGuard: string(guard),
		Action:     action,
		Metadata: map[string]any{
			MetadataEmail:  email,
			MetadataReason: reason,
		},
		IP: ip,
	})
}

func (l *AsyncLogger) LoggedOut(ctx context.Context, guard auth.Guard, principalID, companyID int64) {
	e := Event{
		ActorGuard: string(guard),
		ActorID:    &principalID,
		Action:     ActionLogout,
	}
	if companyID != 0 {
		e.CompanyID = &companyID
	}
	l.Log(ctx, e)
}

func (l *AsyncLogger) TokenRefreshed(ctx context.Context, p *auth.Principal) {
	l.Log(ctx, eventForPrincipal(p, ActionTokenRefreshed))
}

func (l *AsyncLogger) TokenReuseDetected(ctx context.Context, p *auth.Principal) {
	l.Log(ctx, eventForPrincipal(p, ActionTokenReuse))
}

func eventForPrincipal(p *auth.Principal, action string) Event {
	e := Event{Action: action}
	if p == nil {
		return e
	}
	e.ActorGuard = string(p.Guard)
	id := p.ID
	e.ActorID = &id
	if p.CompanyID != 0 {
		cid := p.CompanyID
		e.CompanyID = &cid
	}
	return e
}
