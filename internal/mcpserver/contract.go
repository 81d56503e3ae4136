package mcpserver

// RecordFormatContract describes the JSON records an Agora replica holds, so
// LLM consumers know what the tools read and write.
const RecordFormatContract = `# Agora Record Format

Every origin (e.g. ` + "`" + `dweb://alice` + "`" + `) owns one replica directory of JSON records.
Other nodes replicate these files; this node indexes whatever arrives.

## Layout

| File | Record |
|---|---|
| ` + "`" + `profile.json` + "`" + ` | the origin's profile |
| ` + "`" + `posts/<id>.json` + "`" + ` | one post; ` + "`" + `<id>` + "`" + ` is the base36 creation time in milliseconds |
| ` + "`" + `votes/<uuid>.json` + "`" + ` | one vote; the name is derived from the subject URL |
| ` + "`" + `avatar.<ext>` + "`" + ` | avatar image referenced by the profile |

## Profile

` + "```" + `json
{
  "name": "Alice",
  "bio": "optional",
  "avatar": "avatar.png",
  "follows": [{"url": "dweb://bob", "name": "Bob"}],
  "createdAt": "2025-01-20T10:00:00Z"
}
` + "```" + `

## Post

` + "```" + `json
{
  "text": "hello @bob",
  "mentions": [{"url": "dweb://bob", "name": "bob"}],
  "threadParent": "dweb://bob/posts/lt4x2a9c.json",
  "threadRoot": "dweb://bob/posts/lt4x2a9c.json",
  "createdAt": "2025-01-20T10:00:00Z"
}
` + "```" + `

## Vote

` + "```" + `json
{
  "subject": "https://example.com/article",
  "vote": 1,
  "subjectType": "page",
  "createdAt": "2025-01-20T10:00:00Z"
}
` + "```" + `

## Rules

1. **URLs are canonical.** Scheme and host are lower-case and one trailing slash is dropped.
   A bare name such as ` + "`" + `alice` + "`" + ` means ` + "`" + `dweb://alice` + "`" + `.
2. **A reply names both links.** ` + "`" + `threadParent` + "`" + ` without ` + "`" + `threadRoot` + "`" + ` is rejected.
3. **One vote per subject.** Voting again on the same subject replaces the earlier vote.
   Values are clamped to -1, 0 or 1.
4. **Follows need a profile.** ` + "`" + `follow` + "`" + ` and ` + "`" + `unfollow` + "`" + ` fail until the origin has a profile.
5. **Writes go to local replicas only.** Origins replicated from elsewhere are read-only.

## Notifications

The local user is notified when another origin mentions them, replies to one of
their posts (directly or anywhere under a thread they started) or votes on one of
their URLs.
`
