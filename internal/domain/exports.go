package domain

import (
	interfaces "privcal/internal/domain/interfaces"
	types "privcal/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Event           = types.Event
	Tag             = types.Tag
	Tags            = types.Tags
	Filter          = types.Filter
	Envelope        = types.Envelope
	Rumor           = types.Rumor
	Seal            = types.Seal
	GiftWrap        = types.GiftWrap
	Purpose         = types.Purpose
	RelayPreference = types.RelayPreference
	RelayMessage    = types.RelayMessage
	MessageType     = types.MessageType
	PublishResult   = types.PublishResult
	CalendarEvent   = types.CalendarEvent
	SecretKey       = types.SecretKey
	Identity        = types.Identity
	Fingerprint     = types.Fingerprint
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Signer          = interfaces.Signer
	Cipher          = interfaces.Cipher
	SignerCipher    = interfaces.SignerCipher
	RelayPublisher  = interfaces.RelayPublisher
	RelaySubscriber = interfaces.RelaySubscriber
	RelayQuerier    = interfaces.RelayQuerier
	AuthInvalidator = interfaces.AuthInvalidator
	Subscription    = interfaces.Subscription
	Transport       = interfaces.Transport
	IdentityStore   = interfaces.IdentityStore
	RelayListStore  = interfaces.RelayListStore
	IdentityService = interfaces.IdentityService
	RelayResolver   = interfaces.RelayResolver
)

// Kinds, purposes and message labels.
const (
	KindSeal          = types.KindSeal
	KindGiftWrap      = types.KindGiftWrap
	KindRelayList     = types.KindRelayList
	KindPrivateRelays = types.KindPrivateRelays
	KindClientAuth    = types.KindClientAuth
	KindRemoteSigning = types.KindRemoteSigning
	KindDateEvent     = types.KindDateEvent
	KindTimeEvent     = types.KindTimeEvent
	KindCalendar      = types.KindCalendar
	KindCalendarRSVP  = types.KindCalendarRSVP

	PurposeGeneral = types.PurposeGeneral
	PurposePrivate = types.PurposePrivate

	MessageEvent  = types.MessageEvent
	MessageEOSE   = types.MessageEOSE
	MessageClosed = types.MessageClosed

	SourcePrivate = types.SourcePrivate
)

// Errors shared by the codec, the pipeline and the publish path.
var (
	ErrEnvelopeMalformed     = types.ErrEnvelopeMalformed
	ErrSignatureInvalid      = types.ErrSignatureInvalid
	ErrCapabilityUnavailable = types.ErrCapabilityUnavailable
)

// Functions re-exported for callers that only import domain.
var (
	Classify          = types.Classify
	RumorFromEvent    = types.RumorFromEvent
	SealFromEvent     = types.SealFromEvent
	GiftWrapFromEvent = types.GiftWrapFromEvent
	ParsePurpose      = types.ParsePurpose
	IsCalendarKind    = types.IsCalendarKind
	NewCalendarEvent  = types.NewCalendarEvent
)
