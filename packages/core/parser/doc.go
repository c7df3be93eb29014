// Package parser defines contractspec scenarios and reads them from YAML.
//
// A scenario file is an ordered list of scenarios:
//
//	name: posts
//	variables:
//	  userId: 1
//	scenarios:
//	  - name: create post
//	    request:
//	      method: POST
//	      path: /posts
//	      body: {title: New Post Title, userId: "{{userId}}"}
//	    expect:
//	      status: 201
//	      headers: [Location]
//	      headerPatterns:
//	        - {name: Location, matches: '/posts/\d+$'}
//	    capture:
//	      - {name: postId, header: Location, pattern: '/posts/(\d+)$'}
//
// Order is significant: a scenario may only depend on scenarios listed
// before it.
package parser
