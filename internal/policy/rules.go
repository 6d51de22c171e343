package policy

import "github.com/dynamoRando/rcd-sub004/internal/model"

// Party names a side of the cooperation.
type Party uint8

const (
	PartyNone Party = iota
	PartyHost
	PartyParticipant
)

func (p Party) String() string {
	switch p {
	case PartyHost:
		return "host"
	case PartyParticipant:
		return "participant"
	default:
		return "none"
	}
}

// DeleteSemantics describes what a delete does to the other side.
type DeleteSemantics uint8

const (
	// DeleteNotApplicable applies to tables nobody shares.
	DeleteNotApplicable DeleteSemantics = iota
	// DeleteLocal removes the row where it was deleted and nowhere else.
	DeleteLocal
	// DeleteSoft pushes the delete and keeps a tombstone in the host metadata.
	DeleteSoft
	// DeletePermanent removes the row and its metadata at both sides.
	DeletePermanent
)

// Rules is what a policy means for one table.
type Rules struct {
	Policy        model.LogicalStoragePolicy
	SourceOfTruth Party

	// HostHoldsData is false only for ParticipantOwned, where the host keeps
	// reference hashes and no data.
	HostHoldsData bool

	// ParticipantHoldsData reports whether the table is created in partial databases.
	ParticipantHoldsData bool

	// ParticipantMayWrite reports whether a participant may change its copy locally.
	ParticipantMayWrite bool

	// PushesToParticipants reports whether host writes are pushed down.
	PushesToParticipants bool

	// NotifiesHost reports whether participant writes are reported up.
	NotifiesHost bool

	// HostAppliesParticipantWrites reports whether participant writes carry
	// their row values up and are applied to the host copy. Only Mirror.
	HostAppliesParticipantWrites bool

	// TracksHashes reports whether writes keep row metadata.
	TracksHashes bool

	Delete DeleteSemantics
}

var rules = map[model.LogicalStoragePolicy]Rules{
	model.PolicyNone: {
		Policy:        model.PolicyNone,
		SourceOfTruth: PartyNone,
		HostHoldsData: true,
		Delete:        DeleteNotApplicable,
	},
	model.PolicyHostOnly: {
		Policy:        model.PolicyHostOnly,
		SourceOfTruth: PartyHost,
		HostHoldsData: true,
		Delete:        DeleteLocal,
	},
	model.PolicyParticipantOwned: {
		Policy:               model.PolicyParticipantOwned,
		SourceOfTruth:        PartyParticipant,
		ParticipantHoldsData: true,
		ParticipantMayWrite:  true,
		NotifiesHost:         true,
		TracksHashes:         true,
		Delete:               DeleteLocal,
	},
	model.PolicyShared: {
		Policy:               model.PolicyShared,
		SourceOfTruth:        PartyHost,
		HostHoldsData:        true,
		ParticipantHoldsData: true,
		ParticipantMayWrite:  true,
		PushesToParticipants: true,
		NotifiesHost:         true,
		TracksHashes:         true,
		Delete:               DeleteSoft,
	},
	model.PolicyMirror: {
		Policy:               model.PolicyMirror,
		SourceOfTruth:        PartyHost,
		HostHoldsData:        true,
		ParticipantHoldsData: true,
		ParticipantMayWrite:  true,
		PushesToParticipants: true,
		NotifiesHost:         true,
		TracksHashes:         true,
		Delete:               DeletePermanent,

		HostAppliesParticipantWrites: true,
	},
}

// RulesFor returns the rules of p. Undefined policies get the rules of None.
func RulesFor(p model.LogicalStoragePolicy) Rules {
	if r, ok := rules[p]; ok {
		return r
	}
	return rules[model.PolicyNone]
}
