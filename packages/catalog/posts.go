package catalog

import (
	"regexp"

	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
)

// Scenario names, usable with dependsOn and as name filters.
const (
	ListPosts           = "list posts"
	FirstTenPosts       = "first ten posts"
	PostsByID           = "posts 55 and 60"
	CreateOnProtected   = "create post on protected route"
	CreatePost          = "create post"
	UpdateMissingPost   = "update non-existing post"
	CreatePostForUpdate = "create post for update"
	UpdateCreatedPost   = "update created post"
	DeleteMissingPost   = "delete non-existing post"
	CreatePostEntity    = "create post entity"
	UpdatePostEntity    = "update post entity"
	DeletePostEntity    = "delete post entity"
)

// MissingPostID is an id the service can never have issued.
const MissingPostID = "non-existing-id"

const (
	jsonContentType     = "application/json"
	locationCaptureName = "locationPostId"
	entityIDCaptureName = "postId"
	protectedPostsPath  = "/664/posts"
	postsPath           = "/posts"
	postLocationPattern = `/posts/\d+`
	updatedTitle        = "Updated Post Title"
	updatedBody         = "Updated Post Body"
	newTitle            = "New Post Title"
	newBody             = "New Post Body"
	postOwnerID         = 1
)

func newPost() map[string]any {
	return map[string]any{"title": newTitle, "body": newBody, "userId": postOwnerID}
}

func updatedPost() map[string]any {
	return map[string]any{"title": updatedTitle, "body": updatedBody, "userId": postOwnerID}
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": jsonContentType}
}

// PostsScenarios returns the /posts contract in execution order.
func PostsScenarios() []*parser.Scenario {
	return []*parser.Scenario{
		{
			Name:    ListPosts,
			Tags:    []string{"posts", "read"},
			Request: parser.RequestSpec{Method: "GET", Path: postsPath},
			Expect: parser.Expectation{
				Status:         parser.Status(200),
				HeaderPatterns: []*parser.HeaderPattern{parser.HeaderContains("Content-Type", jsonContentType)},
			},
		},
		{
			Name:    FirstTenPosts,
			Tags:    []string{"posts", "read"},
			Request: parser.RequestSpec{Method: "GET", Path: postsPath + "?_limit=10"},
			Expect: parser.Expectation{
				Status: parser.Status(200),
				Body:   []*parser.Assertion{parser.Length("", 10)},
			},
		},
		{
			Name:    PostsByID,
			Tags:    []string{"posts", "read"},
			Request: parser.RequestSpec{Method: "GET", Path: postsPath + "?id=55&id=60"},
			Expect: parser.Expectation{
				Status: parser.Status(200),
				Body:   []*parser.Assertion{parser.IncludesField("", "id", 55, 60)},
			},
		},
		{
			Name:        CreateOnProtected,
			Description: "writes under the 664 guard need a logged-in user",
			Tags:        []string{"posts", "write", "auth"},
			Request:     parser.RequestSpec{Method: "POST", Path: protectedPostsPath, Body: newPost()},
			Expect:      parser.Expectation{Status: parser.Status(401)},
		},
		{
			Name:    CreatePost,
			Tags:    []string{"posts", "write"},
			Request: parser.RequestSpec{Method: "POST", Path: postsPath, Headers: jsonHeaders(), Body: newPost()},
			Expect: parser.Expectation{
				Status:         parser.Status(201),
				Headers:        []string{"Location"},
				HeaderPatterns: []*parser.HeaderPattern{parser.HeaderMatches("Location", regexp.MustCompile(postLocationPattern))},
			},
		},
		{
			Name:    UpdateMissingPost,
			Tags:    []string{"posts", "write"},
			Request: parser.RequestSpec{Method: "PUT", Path: postsPath + "/" + MissingPostID, Body: updatedPost()},
			Expect:  parser.Expectation{Status: parser.Status(404)},
		},
		{
			Name:    CreatePostForUpdate,
			Tags:    []string{"posts", "write"},
			Request: parser.RequestSpec{Method: "POST", Path: postsPath, Headers: jsonHeaders(), Body: newPost()},
			Expect:  parser.Expectation{Status: parser.Status(201)},
			Captures: []*parser.Capture{
				parser.CaptureFromHeader(locationCaptureName, "Location", parser.ResourceIDPattern("posts")),
			},
		},
		{
			Name:      UpdateCreatedPost,
			Tags:      []string{"posts", "write"},
			DependsOn: []string{CreatePostForUpdate},
			Request: parser.RequestSpec{
				Method:  "PUT",
				Path:    postsPath + "/{{" + locationCaptureName + "}}",
				Headers: jsonHeaders(),
				Body:    updatedPost(),
			},
			Expect: parser.Expectation{
				Status: parser.Status(200),
				Body: []*parser.Assertion{
					parser.Equals("title", updatedTitle),
					parser.Equals("body", updatedBody),
					parser.Equals("userId", postOwnerID),
				},
			},
		},
		{
			Name:    DeleteMissingPost,
			Tags:    []string{"posts", "write"},
			Request: parser.RequestSpec{Method: "DELETE", Path: postsPath + "/" + MissingPostID},
			Expect:  parser.Expectation{Status: parser.Status(404)},
		},
		{
			Name:    CreatePostEntity,
			Tags:    []string{"posts", "write"},
			Request: parser.RequestSpec{Method: "POST", Path: postsPath, Headers: jsonHeaders(), Body: newPost()},
			Expect: parser.Expectation{
				Status: parser.Status(201),
				Body:   []*parser.Assertion{parser.Exists("id")},
			},
			Captures: []*parser.Capture{parser.CaptureFromBody(entityIDCaptureName, "id")},
		},
		{
			Name:      UpdatePostEntity,
			Tags:      []string{"posts", "write"},
			DependsOn: []string{CreatePostEntity},
			Request: parser.RequestSpec{
				Method:  "PUT",
				Path:    postsPath + "/{{" + entityIDCaptureName + "}}",
				Headers: jsonHeaders(),
				Body:    updatedPost(),
			},
			Expect: parser.Expectation{Status: parser.Status(200)},
		},
		{
			Name:      DeletePostEntity,
			Tags:      []string{"posts", "write"},
			DependsOn: []string{UpdatePostEntity},
			Request:   parser.RequestSpec{Method: "DELETE", Path: postsPath + "/{{" + entityIDCaptureName + "}}"},
			Expect:    parser.Expectation{Status: parser.Status(200)},
		},
	}
}
