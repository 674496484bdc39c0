package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/spec-kit/guestpass-service/internal/config"
	"github.com/spec-kit/guestpass-service/internal/domain"
)

// Portal form field names.
const (
	fieldRegistrationCode = "RegistrationCode"
	fieldPlate            = "PermitDetails.LicensePlateNumber"
	fieldPlateState       = "PermitDetails.LicensePlateState"
	fieldYear             = "PermitDetails.VehicleYear"
	fieldMake             = "PermitDetails.VehicleMake"
	fieldModel            = "PermitDetails.VehicleModel"
	fieldColor            = "PermitDetails.VehicleColor"
	fieldFirstName        = "PermitDetails.FirstName"
	fieldLastName         = "PermitDetails.LastName"
	fieldResident         = "PermitDetails.ResidentVisiting"
	fieldApartment        = "PermitDetails.ApartmentVisiting"
	fieldPhone            = "PermitDetails.PhoneNumber"
	fieldEmail            = "PermitDetails.Email"
)

const maxPageBytes = 2 << 20

// PortalExecutor drives the parking portal's multi-step registration form over plain HTTP.
// Steps: verify the registration code, pick the visitor permit, fill the permit details,
// then tick the confirmation box.
type PortalExecutor struct {
	cfg    config.PortalConfig
	client *http.Client
	logger *zap.Logger
}

// NewPortalExecutor builds an executor. A nil client gets a fresh one with a cookie jar.
func NewPortalExecutor(cfg config.PortalConfig, client *http.Client, logger *zap.Logger) *PortalExecutor {
	if client == nil {
		client = &http.Client{}
	}
	return &PortalExecutor{cfg: cfg, client: client, logger: logger}
}

func (e *PortalExecutor) Submit(ctx context.Context, fields domain.RegistrationFields) Result {
	// Each submission gets its own session so concurrent runs never share portal state.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return Failed("cookie jar: " + err.Error())
	}
	client := *e.client
	client.Jar = jar
	s := &portalSession{exec: e, client: &client}

	if err := s.run(ctx, fields); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Failed("submission timed out: " + ctxErr.Error())
		}
		e.logger.Warn("portal submission failed", zap.String("license_plate", fields.LicensePlate), zap.Error(err))
		return Failed(err.Error())
	}
	e.logger.Info("portal submission accepted", zap.String("license_plate", fields.LicensePlate))
	return Succeeded("registration submitted")
}

type portalSession struct {
	exec   *PortalExecutor
	client *http.Client
}

func (s *portalSession) run(ctx context.Context, fields domain.RegistrationFields) error {
	page, err := s.fetch(ctx, http.MethodGet, s.exec.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("load portal: %w", err)
	}

	codeForm := page.formWith(fieldRegistrationCode)
	if codeForm == nil {
		return errors.New("registration code form not found")
	}
	codeForm.values.Set(fieldRegistrationCode, s.exec.cfg.RegistrationCode)
	if page, err = s.submitForm(ctx, page, codeForm); err != nil {
		return fmt.Errorf("verify registration code: %w", err)
	}
	if msg := page.validationErrors(); msg != "" {
		return fmt.Errorf("registration code rejected: %s", msg)
	}

	detailsForm := page.formWith(fieldPlate)
	if detailsForm == nil {
		// The permit type picker sits between code verification and the details form.
		if len(page.forms) == 0 {
			return errors.New("permit type selection not found")
		}
		if page, err = s.submitForm(ctx, page, page.forms[0]); err != nil {
			return fmt.Errorf("select permit type: %w", err)
		}
		if detailsForm = page.formWith(fieldPlate); detailsForm == nil {
			return errors.New("permit details form not found")
		}
	}

	fillDetails(detailsForm.values, fields)
	if page, err = s.submitForm(ctx, page, detailsForm); err != nil {
		return fmt.Errorf("submit permit details: %w", err)
	}
	if msg := page.validationErrors(); msg != "" {
		return fmt.Errorf("permit details rejected: %s", msg)
	}

	confirm := page.formWithCheckbox()
	if confirm == nil {
		return errors.New("confirmation form not found")
	}
	for _, name := range confirm.checkboxes {
		confirm.values.Set(name, "true")
	}
	if page, err = s.submitForm(ctx, page, confirm); err != nil {
		return fmt.Errorf("confirm permit: %w", err)
	}
	if msg := page.validationErrors(); msg != "" {
		return fmt.Errorf("confirmation rejected: %s", msg)
	}
	return nil
}

func fillDetails(values url.Values, f domain.RegistrationFields) {
	values.Set(fieldPlate, f.LicensePlate)
	values.Set(fieldPlateState, f.LicensePlateState)
	values.Set(fieldYear, f.CarYear)
	values.Set(fieldMake, f.CarMake)
	values.Set(fieldModel, f.CarModel)
	values.Set(fieldColor, f.CarColor)
	values.Set(fieldFirstName, f.FirstName)
	values.Set(fieldLastName, f.LastName)
	values.Set(fieldResident, f.ResidentVisiting)
	values.Set(fieldApartment, f.ApartmentVisiting)
	if f.PhoneNumber != nil {
		values.Set(fieldPhone, *f.PhoneNumber)
	}
	values.Set(fieldEmail, f.Email)
}

func (s *portalSession) submitForm(ctx context.Context, page *portalPage, form *portalForm) (*portalPage, error) {
	target, err := page.url.Parse(form.action)
	if err != nil {
		return nil, fmt.Errorf("form action %q: %w", form.action, err)
	}
	if strings.EqualFold(form.method, http.MethodGet) {
		target.RawQuery = form.values.Encode()
		return s.fetch(ctx, http.MethodGet, target.String(), nil)
	}
	return s.fetch(ctx, http.MethodPost, target.String(), form.values)
}

func (s *portalSession) fetch(ctx context.Context, method, rawURL string, form url.Values) (*portalPage, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.exec.cfg.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("portal responded %s", resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse portal page: %w", err)
	}
	return newPortalPage(resp.Request.URL, doc), nil
}

type portalForm struct {
	action     string
	method     string
	values     url.Values
	checkboxes []string
}

type portalPage struct {
	url    *url.URL
	forms  []*portalForm
	errors []string
}

func newPortalPage(u *url.URL, doc *html.Node) *portalPage {
	page := &portalPage{url: u}
	var walk func(n *html.Node, form *portalForm)
	walk = func(n *html.Node, form *portalForm) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				form = &portalForm{action: attr(n, "action"), method: attr(n, "method"), values: url.Values{}}
				page.forms = append(page.forms, form)
			case "input":
				if form != nil {
					addInput(form, n)
				}
			case "select":
				if form != nil {
					if name := attr(n, "name"); name != "" {
						form.values.Set(name, selectedOption(n))
					}
				}
			default:
				if isValidationNode(n) {
					if text := strings.TrimSpace(textOf(n)); text != "" {
						page.errors = append(page.errors, text)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, form)
		}
	}
	walk(doc, nil)
	return page
}

func addInput(form *portalForm, n *html.Node) {
	name := attr(n, "name")
	if name == "" {
		return
	}
	switch strings.ToLower(attr(n, "type")) {
	case "checkbox":
		form.checkboxes = append(form.checkboxes, name)
	case "submit", "button", "image":
		if _, seen := form.values[name]; !seen {
			form.values.Set(name, attr(n, "value"))
		}
	default:
		form.values.Set(name, attr(n, "value"))
	}
}

func (p *portalPage) formWith(field string) *portalForm {
	for _, f := range p.forms {
		if _, ok := f.values[field]; ok {
			return f
		}
	}
	return nil
}

func (p *portalPage) formWithCheckbox() *portalForm {
	for _, f := range p.forms {
		if len(f.checkboxes) > 0 {
			return f
		}
	}
	return nil
}

func (p *portalPage) validationErrors() string {
	return strings.Join(p.errors, "; ")
}

func isValidationNode(n *html.Node) bool {
	class := attr(n, "class")
	return strings.Contains(class, "validation-summary-errors") || strings.Contains(class, "field-validation-error")
}

func selectedOption(sel *html.Node) string {
	first := ""
	var found string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			val := attr(n, "value")
			if first == "" {
				first = val
			}
			if hasAttr(n, "selected") && found == "" {
				found = val
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)
	if found != "" {
		return found
	}
	return first
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
