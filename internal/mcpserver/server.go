// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Agora tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/feed"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/notifications"
	"github.com/starford/agora/internal/social"
)

// Server wraps the MCP server with Agora tools.
type Server struct {
	mcp    *server.MCPServer
	social *social.Service
	feed   *feed.Service
	notes  *notifications.Service
}

// New creates a new MCP server with all Agora tools registered.
func New(socialSvc *social.Service, feedSvc *feed.Service, notes *notifications.Service) *Server {
	s := &Server{social: socialSvc, feed: feedSvc, notes: notes}

	s.mcp = server.NewMCPServer(
		"Agora",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_profile",
		mcp.WithDescription("Read the profile of an origin (e.g. dweb://alice)."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Origin URL or bare replica name")),
	), s.getProfile)

	s.mcp.AddTool(mcp.NewTool("list_followers",
		mcp.WithDescription("List the profiles that follow an origin."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Followed origin")),
	), s.listFollowers)

	s.mcp.AddTool(mcp.NewTool("list_friends",
		mcp.WithDescription("List the profiles an origin follows that follow it back."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Origin")),
	), s.listFriends)

	s.mcp.AddTool(mcp.NewTool("follow",
		mcp.WithDescription("Make origin follow target. The origin must already have a profile."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Follower origin (a local replica)")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Origin to follow")),
		mcp.WithString("name", mcp.Description("Optional display name for target")),
	), s.follow)

	s.mcp.AddTool(mcp.NewTool("unfollow",
		mcp.WithDescription("Make origin stop following target."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Follower origin (a local replica)")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Origin to unfollow")),
	), s.unfollow)

	s.mcp.AddTool(mcp.NewTool("get_thread",
		mcp.WithDescription("Reconstruct the discussion around a post: its replies, "+
			"its chain of parents, authors and vote tallies."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Post URL")),
	), s.getThread)

	s.mcp.AddTool(mcp.NewTool("count_votes",
		mcp.WithDescription("Tally the votes on any URL."),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject URL")),
	), s.countVotes)

	s.mcp.AddTool(mcp.NewTool("vote",
		mcp.WithDescription("Cast or replace origin's vote on a subject URL. "+
			"Values above 0 count as +1, below 0 as -1."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Voter origin (a local replica)")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject URL")),
		mcp.WithNumber("vote", mcp.Required(), mcp.Description("-1, 0 or 1")),
		mcp.WithString("subjectType", mcp.Description("Optional kind of subject")),
	), s.vote)

	s.mcp.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription("Write a post or reply. Read the record format first via the "+
			"get_record_format tool or the agora://record-format resource."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Author origin (a local replica)")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Post text")),
		mcp.WithString("threadParent", mcp.Description("URL of the post being replied to")),
		mcp.WithString("threadRoot", mcp.Description("URL of the thread's root post; required with threadParent")),
		mcp.WithArray("mentions", mcp.Description("Mentioned origins"), mcp.WithStringItems()),
	), s.createPost)

	s.mcp.AddTool(mcp.NewTool("list_notifications",
		mcp.WithDescription("List the local user's notifications, newest first."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
		mcp.WithString("after", mcp.Description("RFC 3339 lower bound, inclusive")),
	), s.listNotifications)

	s.mcp.AddTool(mcp.NewTool("set_avatar",
		mcp.WithDescription("Set an origin's avatar from an http(s) URL or a base64 data URI."),
		mcp.WithString("origin", mcp.Required(), mcp.Description("Origin (a local replica)")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Image URL or data:image/...;base64,... URI")),
	), s.setAvatar)

	s.mcp.AddTool(mcp.NewTool("get_record_format",
		mcp.WithDescription("Returns the Agora record format for profiles, posts and votes."),
	), s.getRecordFormat)

	s.mcp.AddResource(
		mcp.NewResource("agora://record-format", "Record Format",
			mcp.WithResourceDescription("JSON layout of the profile, post and vote records in a replica."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult turns a service error into a tool error; the call itself
// still succeeds.
func errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) getProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := req.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.social.GetProfile(ctx, origin)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p)
}

func (s *Server) listFollowers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := req.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.social.ListFollowers(ctx, origin)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(nonNil(items))
}

func (s *Server) listFriends(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := req.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.social.ListFriends(ctx, origin)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(nonNil(items))
}

func (s *Server) follow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, target, err := originAndTarget(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.social.Follow(ctx, origin, target, req.GetString("name", "")); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s now follows %s", origin, target)), nil
}

func (s *Server) unfollow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, target, err := originAndTarget(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.social.Unfollow(ctx, origin, target); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s no longer follows %s", origin, target)), nil
}

func originAndTarget(req mcp.CallToolRequest) (string, string, error) {
	origin, err := req.RequireString("origin")
	if err != nil {
		return "", "", err
	}
	target, err := req.RequireString("target")
	if err != nil {
		return "", "", err
	}
	return origin, target, nil
}

func (s *Server) getThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.feed.GetThread(ctx, url)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(p)
}

func (s *Server) countVotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tally, err := s.feed.CountVotesFor(ctx, subject)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(tally)
}

func (s *Server) vote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := req.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireFloat("vote")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := feed.VoteInput{
		Subject:     subject,
		Vote:        int(value),
		SubjectType: req.GetString("subjectType", ""),
	}
	if err := s.feed.Vote(ctx, origin, in); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("voted %d on %s", models.ClampVote(in.Vote), subject)), nil
}

func (s *Server) createPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := req.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := feed.PostInput{
		Text:         text,
		ThreadParent: req.GetString("threadParent", ""),
		ThreadRoot:   req.GetString("threadRoot", ""),
	}
	for _, m := range req.GetStringSlice("mentions", nil) {
		in.Mentions = append(in.Mentions, models.Mention{URL: m})
	}
	url, err := s.feed.Post(ctx, origin, in)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("created: " + url), nil
}

func (s *Server) listNotifications(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := notifications.ListOptions{
		Limit:       req.GetInt("limit", 20),
		Offset:      req.GetInt("offset", 0),
		Reverse:     true,
		FetchAuthor: true,
		FetchPost:   true,
	}
	if after := req.GetString("after", ""); after != "" {
		t, err := time.Parse(time.RFC3339Nano, after)
		if err != nil {
			return mcp.NewToolResultError("after must be an RFC 3339 timestamp"), nil
		}
		opts.After = t
	}
	items, err := s.notes.ListNotifications(ctx, opts)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(nonNil(items))
}

func (s *Server) getRecordFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readRecordFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "agora://record-format",
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
