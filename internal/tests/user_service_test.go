package tests

import (
	"context"
	"errors"
	"testing"

	"syncway/internal/domain"
	"syncway/internal/service"
)

func newUserFixture() (*service.UserService, *MockUserRepository, *MockPresenceStore) {
	users := NewMockUserRepository()
	presence := NewMockPresenceStore()
	return service.NewUserService(users, presence, quietLogger()), users, presence
}

func TestRegister_CreatesUserAndWelcome(t *testing.T) {
	svc, users, _ := newUserFixture()

	res, err := svc.Register(context.Background(), service.RegisterRequest{
		Name: " Rita ", Phone: "555 0100", Email: "rita@example.com", Role: domain.UserRoleUser,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.User.Name != "Rita" || res.User.Phone != "5550100" {
		t.Errorf("expected trimmed name and normalized phone, got %q %q", res.User.Name, res.User.Phone)
	}
	if !res.User.AccountActive || !res.User.EmailNotifications {
		t.Error("new accounts start active with email on")
	}
	if users.CreateCallCount != 1 {
		t.Errorf("expected 1 create, got %d", users.CreateCallCount)
	}
	if welcome := findEmail(res.Events, domain.EmailWelcome); welcome == nil || welcome.User == nil {
		t.Error("expected a welcome email")
	}
}

func TestRegister_DuplicatePhone(t *testing.T) {
	svc, _, _ := newUserFixture()
	req := service.RegisterRequest{Name: "Rita", Phone: "5550100", Role: domain.UserRoleUser}

	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register: %v", err)
	}
	req.Phone = "555 0100"
	_, err := svc.Register(context.Background(), req)
	if !errors.Is(err, service.ErrPhoneAlreadyRegistered) {
		t.Fatalf("expected ErrPhoneAlreadyRegistered, got %v", err)
	}
}

func TestRegister_ReactivatesDeletedAccount(t *testing.T) {
	svc, users, _ := newUserFixture()
	ctx := context.Background()

	first, err := svc.Register(ctx, service.RegisterRequest{Name: "Rita", Phone: "5550100", Role: domain.UserRoleUser})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Deactivate(ctx, first.User.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	again, err := svc.Register(ctx, service.RegisterRequest{Name: "Rita D", Phone: "5550100", Role: domain.UserRoleDriver})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again.User.ID != first.User.ID {
		t.Errorf("expected the same account to be reactivated")
	}
	if again.User.Role != domain.UserRoleDriver || !again.User.AccountActive {
		t.Errorf("expected an active driver, got %+v", again.User)
	}
	if users.CreateCallCount != 1 {
		t.Errorf("reactivation must not create a second account")
	}
	if len(again.Events) != 0 {
		t.Error("no email address, no welcome email")
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newUserFixture()

	testCases := []struct {
		name string
		req  service.RegisterRequest
		want error
	}{
		{"no name", service.RegisterRequest{Phone: "1", Role: domain.UserRoleUser}, service.ErrInvalidUserName},
		{"no phone", service.RegisterRequest{Name: "R", Phone: "  ", Role: domain.UserRoleUser}, service.ErrInvalidPhone},
		{"bad role", service.RegisterRequest{Name: "R", Phone: "1", Role: "admin"}, service.ErrInvalidUserRole},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDeactivate_TakesUserOffline(t *testing.T) {
	svc, _, presence := newUserFixture()
	ctx := context.Background()

	res, err := svc.Register(ctx, service.RegisterRequest{Name: "Dan", Phone: "5550199", Role: domain.UserRoleDriver})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = presence.MarkOnline(ctx, res.User.ID)
	_ = presence.MarkOnline(ctx, "someone-else")

	out, err := svc.Deactivate(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	ids, _ := presence.OnlineUserIDs(ctx)
	if len(ids) != 1 || ids[0] != "someone-else" {
		t.Errorf("expected only someone-else online, got %v", ids)
	}
	update := findRealtime(out.Events, domain.EventOnlineUsersUpdate)
	if update == nil {
		t.Fatal("expected onlineUsersUpdate broadcast")
	}
	if got := update.Payload.(domain.OnlineUsers).OnlineCount; got != 1 {
		t.Errorf("expected online count 1, got %d", got)
	}

	if _, err := svc.Get(ctx, res.User.ID); err != nil {
		t.Errorf("soft-deleted users stay readable, got %v", err)
	}
	if _, err := svc.Deactivate(ctx, res.User.ID); !errors.Is(err, service.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound on second deactivate, got %v", err)
	}
}

func TestSetEmailNotifications(t *testing.T) {
	svc, _, _ := newUserFixture()
	ctx := context.Background()

	res, err := svc.Register(ctx, service.RegisterRequest{Name: "Dan", Phone: "5550199", Role: domain.UserRoleDriver})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := svc.SetEmailNotifications(ctx, res.User.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.EmailNotifications {
		t.Error("expected notifications off")
	}
	if _, err := svc.SetEmailNotifications(ctx, "missing", true); !errors.Is(err, service.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPresenceDirectory_IntersectsOnlineDrivers(t *testing.T) {
	users := NewMockUserRepository()
	presence := NewMockPresenceStore()
	dir := service.NewPresenceDirectory(presence, users)
	ctx := context.Background()

	rider := driver("u1")
	rider.Role = domain.UserRoleUser
	muted := driver("d2")
	muted.EmailNotifications = false
	for _, u := range []*domain.User{rider, driver("d1"), muted, driver("d3")} {
		users.AddUser(u)
	}
	for _, id := range []string{"u1", "d1", "d2"} {
		_ = presence.MarkOnline(ctx, id)
	}

	got, err := dir.ListOnlineNotifiableDrivers(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "d1" {
		t.Errorf("expected only d1, got %v", got)
	}

	count, err := dir.OnlineCount(ctx)
	if err != nil || count != 3 {
		t.Errorf("expected 3 online, got %d (%v)", count, err)
	}
}
