package twilio

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/medremind/callsched/internal/model"
)

// VoiceClient places reminder calls through Twilio's programmable voice API.
type VoiceClient struct {
	client *twilio.RestClient
	from   string
}

// New creates a voice client bound to the configured caller id.
func New(accountSID, authToken, fromNumber string) *VoiceClient {
	return &VoiceClient{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken}),
		from:   fromNumber,
	}
}

// PlaceCall dials the user and speaks the medication list, returning the
// provider-assigned call SID. The Twilio REST client carries no context, so
// cancellation is only honored before the request goes out.
func (c *VoiceClient) PlaceCall(ctx context.Context, phone, name string, items []model.CallItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.client == nil {
		return "", fmt.Errorf("twilio client not initialised")
	}
	if phone == "" {
		return "", fmt.Errorf("recipient number missing")
	}

	twiml, err := BuildTwiML(name, items)
	if err != nil {
		return "", err
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(phone)
	params.SetFrom(c.from)
	params.SetTwiml(twiml)

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio create call error: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("twilio response missing call sid")
	}

	return *resp.Sid, nil
}

type twimlResponse struct {
	XMLName  xml.Name   `xml:"Response"`
	Greeting twimlSay   `xml:"Say"`
	Pause    twimlPause `xml:"Pause"`
	Repeat   twimlSay   `xml:"Say"`
}

type twimlSay struct {
	Text string `xml:",chardata"`
}

type twimlPause struct {
	Length int `xml:"length,attr"`
}

// BuildTwiML renders the reminder announcement. The line is spoken twice
// with a short pause so a user picking up late still hears the full list.
func BuildTwiML(name string, items []model.CallItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("empty medication batch")
	}

	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	line := fmt.Sprintf("Hello %s. It is time to take your medication: %s.", name, SpokenList(names))

	doc := twimlResponse{
		Greeting: twimlSay{Text: line},
		Pause:    twimlPause{Length: 1},
		Repeat:   twimlSay{Text: line},
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return xml.Header + string(out), nil
}

// SpokenList joins medication names the way they should be read out loud:
// "A", "A and B", "A, B, and C".
func SpokenList(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}
