package domain

// EventKind tells the dispatcher which collaborator executes an event.
type EventKind string

const (
	EventKindBroadcast EventKind = "broadcast"
	EventKindNotify    EventKind = "notify"
	EventKindEmail     EventKind = "email"
)

// Realtime event names. Clients subscribe to these over the socket.
const (
	EventNewRideAvailable         = "newRideAvailable"
	EventRideClaimed              = "rideClaimed"
	EventRideUnclaimed            = "rideUnclaimed"
	EventRideCancelled            = "rideCancelled"
	EventRideRemovedFromAvailable = "rideRemovedFromAvailable"
	EventOnlineUsersUpdate        = "onlineUsersUpdate"
)

// EmailTemplate names a rendered email.
type EmailTemplate string

const (
	EmailWelcome                EmailTemplate = "welcome"
	EmailNewRide                EmailTemplate = "new_ride"
	EmailRideClaimedRequester   EmailTemplate = "ride_claimed_requester"
	EmailRideClaimedDriver      EmailTemplate = "ride_claimed_driver"
	EmailRideUnclaimedRequester EmailTemplate = "ride_unclaimed_requester"
	EmailRideUnclaimedDriver    EmailTemplate = "ride_unclaimed_driver"
	EmailRideCancelledRequester EmailTemplate = "ride_cancelled_requester"
	EmailRideCancelledDriver    EmailTemplate = "ride_cancelled_driver"
)

// Event is a deferred, best-effort side effect produced by a committed state
// change. Events are executed after the write and never roll it back.
type Event struct {
	Kind    EventKind
	Name    string // realtime event name, for broadcast and notify
	Target  string // user id, for notify
	Payload any
	Email   *EmailEvent
}

// EmailEvent carries what the mail layer needs to render and address a message.
type EmailEvent struct {
	Template    EmailTemplate
	To          string
	RecipientID string
	Ride        *Ride
	Driver      *Claim // driver snapshot captured before any claim was cleared
	User        *User  // set for account mail
}

// BroadcastEvent builds an event delivered to every connected client.
func BroadcastEvent(name string, payload any) Event {
	return Event{Kind: EventKindBroadcast, Name: name, Payload: payload}
}

// NotifyEvent builds an event delivered to one user's connections.
func NotifyEvent(target, name string, payload any) Event {
	return Event{Kind: EventKindNotify, Name: name, Target: target, Payload: payload}
}

// EmailEventFor builds an email event.
func EmailEventFor(e EmailEvent) Event {
	return Event{Kind: EventKindEmail, Email: &e}
}

// OnlineUsers is the payload of EventOnlineUsersUpdate.
type OnlineUsers struct {
	OnlineCount int64 `json:"onlineCount"`
}
