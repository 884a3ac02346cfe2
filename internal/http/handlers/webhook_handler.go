// Webhook HTTP handlers.
//
//   - POST /webhooks/twilio/inbound  (Twilio WhatsApp inbound message)
//   - POST /webhooks/intercom        (Intercom notification)
//
// Both handlers only translate transport into an intake request and the
// intake result back into the response shape the sender expects. Relay work
// happens after the response is written.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wa-intercom-relay/internal/http/middleware"
	"github.com/tbourn/wa-intercom-relay/internal/services"
	"github.com/tbourn/wa-intercom-relay/internal/signature"
)

// emptyTwiML tells Twilio there is nothing to send back to the sender.
const emptyTwiML = "<Response></Response>"

// IntercomAck is the JSON body answered to Intercom webhooks.
type IntercomAck struct {
	OK      bool   `json:"ok"                example:"true"`
	Ignored bool   `json:"ignored,omitempty" example:"false"`
	Error   string `json:"error,omitempty"   example:"signature_invalid"`
}

// TwilioInbound godoc
// @ID          twilioInbound
// @Summary     Twilio WhatsApp inbound webhook
// @Description Verifies X-Twilio-Signature, checks routing, records the delivery and queues the relay to Intercom. Always answers with empty TwiML.
// @Tags        Webhooks
// @Accept      x-www-form-urlencoded
// @Produce     xml
//
// @Param       X-Twilio-Signature  header    string  true   "Base64 HMAC-SHA1 of URL + sorted params"
// @Param       MessageSid          formData  string  false  "Twilio message SID"  example(SM0123456789abcdef)
// @Param       From                formData  string  true   "Sender"              example(whatsapp:+15550100)
// @Param       To                  formData  string  true   "Business number"     example(whatsapp:+15550000)
// @Param       Body                formData  string  false  "Message text"
// @Param       NumMedia            formData  int     false  "Number of media items"
//
// @Success     200  {string}  string  "<Response></Response>"
// @Failure     401  {string}  string  "Signature invalid"
// @Failure     409  {string}  string  "Routing not found, disabled or mismatched"
// @Failure     413  {string}  string  "Payload too large"
// @Failure     500  {string}  string  "Internal error"
// @Router      /webhooks/twilio/inbound [post]
func (h *Handlers) TwilioInbound(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		status := http.StatusBadRequest
		if isTooLarge(err) {
			status = http.StatusRequestEntityTooLarge
		}
		twiml(c, status)
		return
	}

	res, err := h.intake.ReceiveTwilio(c.Request.Context(), services.TwilioRequest{
		URL:       h.webhookURL(c),
		Signature: c.GetHeader(signature.TwilioHeader),
		Form:      c.Request.PostForm,
	})
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("twilio intake failed")
		twiml(c, http.StatusInternalServerError)
		return
	}
	twiml(c, res.HTTPStatus)
}

// IntercomWebhook godoc
// @ID          intercomWebhook
// @Summary     Intercom webhook
// @Description Verifies X-Hub-Signature and records conversation.admin.replied notifications. Other topics are acknowledged and ignored.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       X-Hub-Signature  header  string  true  "sha1=<hex HMAC-SHA1 of the raw body>"
//
// @Success     200  {object}  handlers.IntercomAck
// @Failure     401  {object}  handlers.IntercomAck  "Signature invalid"
// @Failure     413  {object}  handlers.IntercomAck  "Payload too large"
// @Failure     500  {object}  handlers.IntercomAck  "Internal error"
// @Router      /webhooks/intercom [post]
func (h *Handlers) IntercomWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		status, code := http.StatusBadRequest, ErrCodeBadRequest
		if isTooLarge(err) {
			status, code = http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge
		}
		c.AbortWithStatusJSON(status, IntercomAck{Error: code})
		return
	}

	res, err := h.intake.ReceiveIntercom(c.Request.Context(), services.IntercomRequest{
		Signature: c.GetHeader(signature.IntercomHeader),
		Body:      body,
	})
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("intercom intake failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, IntercomAck{Error: ErrCodeInternal})
		return
	}

	ack := IntercomAck{OK: res.HTTPStatus < http.StatusBadRequest, Ignored: res.Ignored}
	if !ack.OK {
		ack.Error = res.Code
	}
	c.JSON(res.HTTPStatus, ack)
}

// webhookURL rebuilds the public URL Twilio signed. Behind a proxy the
// request only carries the internal address, so PublicBaseURL takes
// precedence. X-Forwarded-Proto/X-Forwarded-Host are read only when the
// proxy is trusted to overwrite them.
func (h *Handlers) webhookURL(c *gin.Context) string {
	uri := c.Request.URL.RequestURI()
	if h.publicBaseURL != "" {
		return h.publicBaseURL + uri
	}
	scheme := "http"
	host := c.Request.Host
	if h.trustProxyHeaders {
		if middleware.IsHTTPS(c.Request) {
			scheme = "https"
		}
		if fh := firstValue(c.GetHeader("X-Forwarded-Host")); fh != "" {
			host = fh
		}
	} else if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + host + uri
}

func twiml(c *gin.Context, status int) {
	c.Data(status, "text/xml; charset=utf-8", []byte(emptyTwiML))
	c.Abort()
}

// firstValue returns the first element of a comma-separated header value.
func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
