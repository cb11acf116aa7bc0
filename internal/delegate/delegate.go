// Package delegate implements the outgoing-message sink the loop
// serializes every ReplyMessage through.
package delegate

import "github.com/mark3labs/dialogia/internal/dialogue"

// Delegate is the abstract sink the loop drives. Implementations must be
// idempotent and side-effect-free per call; the loop itself
// guarantees ordering, so implementations do not need to reorder or batch.
type Delegate interface {
	Send(text, icon string) error
	SendPicture(url, icon string) error
	SendRDL(rdl dialogue.RDLMessage, icon string) error
	SendChoice(index int, icon, title, text string) error
	SendLink(title, url string) error
	SendButton(title, json string) error
	SendAskSpecial(kind dialogue.AskSpecialKind) error
}

// Dispatch serializes every message of a ReplyResult to d in order,
// followed by exactly one AskSpecial frame. icon is the handler's icon,
// attached to text/picture/RDL frames.
func Dispatch(d Delegate, icon string, result *dialogue.ReplyResult) error {
	for _, msg := range result.Messages {
		if err := dispatchOne(d, icon, msg); err != nil {
			return err
		}
	}
	kind := dialogue.SpecialNull
	switch result.Expecting {
	case dialogue.CategoryYesNo:
		kind = dialogue.SpecialYesNo
	case dialogue.CategoryChoice:
		kind = dialogue.SpecialChoice
	case dialogue.CategoryCommand:
		kind = dialogue.SpecialCommand
	case dialogue.CategoryNumber:
		kind = dialogue.SpecialNumber
	case dialogue.CategoryLocation:
		kind = dialogue.SpecialLocation
	case dialogue.CategoryRawString:
		kind = dialogue.SpecialRawString
	case dialogue.CategoryPassword:
		kind = dialogue.SpecialPassword
	case dialogue.CategoryPhoneNumber:
		kind = dialogue.SpecialPhoneNumber
	case dialogue.CategoryEmailAddress:
		kind = dialogue.SpecialEmailAddress
	case dialogue.CategoryGeneric:
		kind = dialogue.SpecialGeneric
	}
	return d.SendAskSpecial(kind)
}

func dispatchOne(d Delegate, icon string, msg dialogue.ReplyMessage) error {
	switch m := msg.(type) {
	case dialogue.TextMessage:
		return d.Send(m.Text, icon)
	case dialogue.PictureMessage:
		return d.SendPicture(m.URL, icon)
	case dialogue.RDLMessage:
		return d.SendRDL(m, icon)
	case dialogue.ButtonMessage:
		return d.SendButton(m.Title, m.JSON)
	case dialogue.LinkMessage:
		return d.SendLink(m.Title, m.URL)
	case dialogue.ChoiceMessage:
		return d.SendChoice(m.Index, icon, m.Title, m.Title)
	case dialogue.AskSpecialMessage:
		return d.SendAskSpecial(m.Kind)
	default:
		return nil
	}
}
