// Package moodle implements a lightweight HTTP-level login against the
// UTEC Moodle instance. It exists so callers that only need to verify a
// password (manual refresh, health checks) don't have to pay for a full
// browser launch.
package moodle

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"ltiuy-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/moodle")

var ErrLoginFailed = fmt.Errorf("failed to login to your account")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	// BaseUrl points at the Moodle root, e.g.
	// https://ev1.utec.edu.uy/moodle
	BaseUrl string
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/moodle/http")

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

// LoginUsernamePassword performs the Moodle form login. It returns
// ErrLoginFailed when the dashboard still shows the anonymous login
// prompt afterwards, which is the one signal Moodle renders reliably.
func (c *Client) LoginUsernamePassword(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "LoginUsernamePassword")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get("/login/index.php")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	logintoken := doc.Find("input[name=logintoken]").AttrOr("value", "")
	if logintoken == "" {
		span.SetStatus(codes.Error, "failed to find login token")
		return fmt.Errorf("could not find login token")
	}

	_, err = c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"logintoken": logintoken,
			"username":   username,
			"password":   password,
		}).
		Post("/login/index.php")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	res, err = c.Http.R().
		SetContext(ctx).
		Get("/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request dashboard after login")
		return err
	}
	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse dashboard html")
		return err
	}

	if len(doc.Find("div.usermenu span.login").Nodes) > 0 {
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}

	return nil
}

// VerifyCredentials is LoginUsernamePassword collapsed to a yes/no.
// Transport errors are returned as-is so callers can distinguish "wrong
// password" from "Moodle is down".
func (c *Client) VerifyCredentials(ctx context.Context, username, password string) (bool, error) {
	err := c.LoginUsernamePassword(ctx, username, password)
	if err == ErrLoginFailed {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
